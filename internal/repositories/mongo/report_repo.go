package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"peerprep/interview/internal/models"
)

const reportsCollection = "interview_reports"

type ReportRepo struct {
	col *mongo.Collection
	now func() time.Time
}

func NewReportRepo(db *mongo.Database) *ReportRepo {
	return &ReportRepo{col: db.Collection(reportsCollection), now: time.Now}
}

func (r *ReportRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "sessionId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// UpsertReport replaces the report for (userId, sessionId), creating it if absent.
func (r *ReportRepo) UpsertReport(ctx context.Context, report *models.InterviewReport) error {
	doc := *report
	doc.ID = primitive.NilObjectID
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = r.now().UTC()
	}
	if doc.QuestionScores == nil {
		doc.QuestionScores = []int{}
	}
	if doc.Cheating.EvidenceImages == nil {
		doc.Cheating.EvidenceImages = []string{}
	}
	filter := bson.M{"userId": doc.UserID, "sessionId": doc.SessionID}
	_, err := r.col.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return err
}
