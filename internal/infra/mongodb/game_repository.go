package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"live-quiz-service/internal/domain"
)

// GameRepository keeps one document per game with players and their answers
// embedded.
type GameRepository struct {
	collection *mongo.Collection
}

func NewGameRepository(db *mongo.Database) *GameRepository {
	return &GameRepository{collection: db.Collection(gamesCollection)}
}

// Create stores a new game. The open-code index rejects a concurrent create
// that slips past the CodeInUse check.
func (r *GameRepository) Create(ctx context.Context, game domain.Game) error {
	inUse, err := r.CodeInUse(ctx, game.Code)
	if err != nil {
		return err
	}
	if inUse {
		return domain.ErrCodeTaken
	}
	_, err = r.collection.InsertOne(ctx, forStorage(game))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

func (r *GameRepository) FindByID(ctx context.Context, id string) (domain.Game, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *GameRepository) FindByCode(ctx context.Context, code string) (domain.Game, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return r.findOne(ctx, bson.M{"gameCode": code}, opts)
}

func (r *GameRepository) Save(ctx context.Context, game domain.Game) error {
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": game.ID}, forStorage(game))
	if err != nil {
		return fmt.Errorf("replace game: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("game %s: %w", game.ID, domain.ErrGameNotFound)
	}
	return nil
}

// AppendAnswer pushes the answer and bumps the score in a single update whose
// filter only matches while the player has no answer for the question.
func (r *GameRepository) AppendAnswer(ctx context.Context, gameID, userID string, answer domain.Answer) error {
	filter := bson.M{
		"_id": gameID,
		"players": bson.M{"$elemMatch": bson.M{
			"userId":             userID,
			"answers.questionId": bson.M{"$ne": answer.QuestionID},
		}},
	}
	update := bson.M{
		"$push": bson.M{"players.$.answers": answer},
		"$inc":  bson.M{"players.$.score": answer.PointsEarned},
	}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("append answer: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// work out which part of the guard failed
	game, err := r.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game.PlayerIndex(userID) < 0 {
		return domain.ErrUnknownPlayer
	}
	return domain.ErrDuplicateAnswer
}

func (r *GameRepository) CodeInUse(ctx context.Context, code string) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{
		"gameCode": code,
		"status":   bson.M{"$ne": domain.StatusCompleted},
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return n > 0, nil
}

func (r *GameRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (domain.Game, error) {
	var game domain.Game
	err := r.collection.FindOne(ctx, filter, opts...).Decode(&game)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Game{}, fmt.Errorf("game %v: %w", filter, domain.ErrGameNotFound)
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("find game: %w", err)
	}
	return game, nil
}

// forStorage replaces nil slices with empty ones so $push always targets an array.
func forStorage(game domain.Game) domain.Game {
	out := game.Clone()
	if out.Questions == nil {
		out.Questions = []string{}
	}
	for i := range out.Players {
		if out.Players[i].Answers == nil {
			out.Players[i].Answers = []domain.Answer{}
		}
	}
	return out
}
