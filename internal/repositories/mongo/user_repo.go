package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"peerprep/interview/internal/models"
)

const usersCollection = "users"

// UserRepo reads the user collection owned by the account service. The only
// field it writes is faceEmbedding.
type UserRepo struct {
	col *mongo.Collection
}

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{col: db.Collection(usersCollection)}
}

func (r *UserRepo) UserExists(ctx context.Context, userID string) (bool, error) {
	oid, err := objectID("userId", userID)
	if err != nil {
		return false, err
	}
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *UserRepo) EnrolledEmbedding(ctx context.Context, userID string) ([]float64, error) {
	oid, err := objectID("userId", userID)
	if err != nil {
		return nil, err
	}
	var u models.User
	opts := options.FindOne().SetProjection(bson.M{"faceEmbedding": 1})
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrUserNotFound
		}
		return nil, err
	}
	if len(u.FaceEmbedding) == 0 {
		return nil, models.ErrEnrollmentMissing
	}
	return u.FaceEmbedding, nil
}

func (r *UserRepo) SetFaceEmbedding(ctx context.Context, userID string, embedding []float64) error {
	oid, err := objectID("userId", userID)
	if err != nil {
		return err
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"faceEmbedding": embedding}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return models.ErrUserNotFound
	}
	return nil
}
