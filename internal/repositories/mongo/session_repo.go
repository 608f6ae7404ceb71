package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"peerprep/interview/internal/models"
)

const sessionsCollection = "interview_sessions"

// SessionRepo stores interview sessions. Every mutation is a targeted
// update operator on a single document.
type SessionRepo struct {
	col *mongo.Collection
	now func() time.Time
}

func NewSessionRepo(db *mongo.Database) *SessionRepo {
	return &SessionRepo{col: db.Collection(sessionsCollection), now: time.Now}
}

func (r *SessionRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "finalizedAt", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	return err
}

func (r *SessionRepo) Create(ctx context.Context, s *models.InterviewSession) (*models.InterviewSession, error) {
	now := r.now().UTC()
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	s.CreatedAt, s.UpdatedAt = now, now
	if s.Questions == nil {
		s.Questions = []models.QuestionRecord{}
	}
	if s.Cheating.Incidents == nil {
		s.Cheating.Incidents = []models.Incident{}
	}
	if _, err := r.col.InsertOne(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) GetSession(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	oid, err := objectID("sessionId", sessionID)
	if err != nil {
		return nil, err
	}
	var s models.InterviewSession
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) ResetMismatchStreak(ctx context.Context, sessionID string) error {
	oid, err := objectID("sessionId", sessionID)
	if err != nil {
		return err
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{"cheating.consecutiveMismatchCount": 0, "updatedAt": r.now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepo) IncrementMismatchStreak(ctx context.Context, sessionID string) (int, error) {
	s, err := r.findOneAndUpdate(ctx, sessionID, bson.M{
		"$inc": bson.M{"cheating.consecutiveMismatchCount": 1},
		"$set": bson.M{"updatedAt": r.now().UTC()},
	})
	if err != nil {
		return 0, err
	}
	return s.Cheating.ConsecutiveMismatchCount, nil
}

// IncrementFaceMismatch bumps the counter and raises isDetected in the same
// pipeline update, so concurrent callers each observe a distinct count.
func (r *SessionRepo) IncrementFaceMismatch(ctx context.Context, sessionID string, criticalAt int) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"cheating.faceMismatchCount": bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$cheating.faceMismatchCount", 0}}, 1}},
			"updatedAt":                  r.now().UTC(),
		}}},
		{{Key: "$set", Value: bson.M{
			"cheating.isDetected": bson.M{"$or": bson.A{
				bson.M{"$ifNull": bson.A{"$cheating.isDetected", false}},
				bson.M{"$gte": bson.A{"$cheating.faceMismatchCount", criticalAt}},
			}},
		}}},
	}
	s, err := r.findOneAndUpdate(ctx, sessionID, pipeline)
	if err != nil {
		return 0, err
	}
	return s.Cheating.FaceMismatchCount, nil
}

func (r *SessionRepo) RecordIncident(ctx context.Context, sessionID string, incident models.Incident, penalty int) (*models.CheatingRecord, error) {
	oid, err := objectID("sessionId", sessionID)
	if err != nil {
		return nil, err
	}
	update := bson.M{
		"$inc":  bson.M{"cheating.incidentCount": 1, "cheating.penaltyPoints": penalty},
		"$set":  bson.M{"cheating.isDetected": true, "updatedAt": r.now().UTC()},
		"$push": bson.M{"cheating.incidents": incident},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var s models.InterviewSession
	err = r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid, "finalizedAt": nil}, update, opts).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.missingOrFinalized(ctx, oid)
	}
	if err != nil {
		return nil, err
	}
	return &s.Cheating, nil
}

// FinalizeScore writes the final score only while the session is unfinalized and
// its penalty and progress are unchanged since snapshot was read.
func (r *SessionRepo) FinalizeScore(ctx context.Context, snapshot *models.InterviewSession, totalScore, percentage int, at time.Time) (bool, error) {
	filter := bson.M{
		"_id":                    snapshot.ID,
		"finalizedAt":            nil,
		"cheating.penaltyPoints": snapshot.Cheating.PenaltyPoints,
		"currentIndex":           snapshot.CurrentIndex,
	}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"totalScore":        totalScore,
		"overallPercentage": percentage,
		"isCompleted":       true,
		"finalizedAt":       at,
		"updatedAt":         at,
	}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// SaveAnswer fills question slot index and advances currentIndex, provided the
// session is still on that slot.
func (r *SessionRepo) SaveAnswer(ctx context.Context, sessionID string, index int, q models.QuestionRecord) (*models.InterviewSession, error) {
	oid, err := objectID("sessionId", sessionID)
	if err != nil {
		return nil, err
	}
	prefix := fmt.Sprintf("questions.%d.", index)
	set := bson.M{
		prefix + "answer":     q.Answer,
		prefix + "score":      q.Score,
		prefix + "feedback":   q.Feedback,
		prefix + "answeredAt": q.AnsweredAt,
		"updatedAt":           r.now().UTC(),
	}
	if q.Behavior != nil {
		set[prefix+"behavior"] = q.Behavior
	}
	filter := bson.M{"_id": oid, "currentIndex": index, "finalizedAt": nil}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var s models.InterviewSession
	err = r.col.FindOneAndUpdate(ctx, filter, bson.M{"$set": set, "$inc": bson.M{"currentIndex": 1}}, opts).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if err := r.missingOrFinalized(ctx, oid); !errors.Is(err, models.ErrSessionCompleted) {
			return nil, err
		}
		return nil, models.ErrAnswerConflict
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) SetBodyLanguage(ctx context.Context, sessionID, userID string, bl models.BodyLanguage) error {
	oid, err := objectID("sessionId", sessionID)
	if err != nil {
		return err
	}
	uid, err := objectID("userId", userID)
	if err != nil {
		return err
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid, "userId": uid}, bson.M{
		"$set": bson.M{"bodyLanguage": bl, "updatedAt": r.now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// ListStaleUnfinalized returns ids of sessions created before cutoff that never got a final score.
func (r *SessionRepo) ListStaleUnfinalized(ctx context.Context, cutoff time.Time, limit int64) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetLimit(limit)
	cur, err := r.col.Find(ctx, bson.M{"finalizedAt": nil, "createdAt": bson.M{"$lt": cutoff}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID.Hex())
	}
	return ids, nil
}

func (r *SessionRepo) findOneAndUpdate(ctx context.Context, sessionID string, update interface{}) (*models.InterviewSession, error) {
	oid, err := objectID("sessionId", sessionID)
	if err != nil {
		return nil, err
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var s models.InterviewSession
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) missingOrFinalized(ctx context.Context, oid primitive.ObjectID) error {
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrSessionNotFound
	}
	return models.ErrSessionCompleted
}
