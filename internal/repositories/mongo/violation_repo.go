package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"peerprep/interview/internal/models"
)

const violationsCollection = "violations"

// ViolationRepo is the append-only violation ledger. Rows are never updated.
type ViolationRepo struct {
	col *mongo.Collection
	now func() time.Time
}

func NewViolationRepo(db *mongo.Database) *ViolationRepo {
	return &ViolationRepo{col: db.Collection(violationsCollection), now: time.Now}
}

func (r *ViolationRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{
			Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "eventId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"eventId": bson.M{"$exists": true}}),
		},
	})
	return err
}

func (r *ViolationRepo) Append(ctx context.Context, v *models.Violation) (*models.Violation, bool, error) {
	row := *v
	if row.ID == "" {
		row.ID = primitive.NewObjectID().Hex()
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = r.now().UTC()
	}
	if _, err := r.col.InsertOne(ctx, row); err != nil {
		if mongo.IsDuplicateKeyError(err) && row.EventID != "" {
			existing, ferr := r.findByEvent(ctx, row.SessionID, row.EventID)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return &row, true, nil
}

func (r *ViolationRepo) CountByType(ctx context.Context, sessionID string, types ...models.ViolationType) (int, error) {
	if len(types) == 0 {
		return 0, nil
	}
	in := make(bson.A, 0, len(types))
	for _, t := range types {
		in = append(in, string(t))
	}
	n, err := r.col.CountDocuments(ctx, bson.M{"sessionId": sessionID, "violationType": bson.M{"$in": in}})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *ViolationRepo) ListBySession(ctx context.Context, sessionID string) ([]models.Violation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{"sessionId": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Violation{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ViolationRepo) findByEvent(ctx context.Context, sessionID, eventID string) (*models.Violation, error) {
	var v models.Violation
	err := r.col.FindOne(ctx, bson.M{"sessionId": sessionID, "eventId": eventID}).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.New("duplicate violation event vanished")
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
