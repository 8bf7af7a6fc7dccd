package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserStats increments lifetime counters on user documents, creating them on
// first use.
type UserStats struct {
	collection *mongo.Collection
}

func NewUserStats(db *mongo.Database) *UserStats {
	return &UserStats{collection: db.Collection(usersCollection)}
}

func (s *UserStats) RecordResult(ctx context.Context, userID string, won bool) error {
	inc := bson.M{"totalGamesPlayed": 1}
	if won {
		inc["totalWins"] = 1
	}
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$inc": inc}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("record result for %s: %w", userID, err)
	}
	return nil
}
