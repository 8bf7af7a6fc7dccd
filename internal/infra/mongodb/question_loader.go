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

// QuestionLoader reads question documents from the questions collection.
type QuestionLoader struct {
	collection *mongo.Collection
}

func NewQuestionLoader(db *mongo.Database) *QuestionLoader {
	return &QuestionLoader{collection: db.Collection(questionsCollection)}
}

func (l *QuestionLoader) LoadQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	var q domain.Question
	err := l.collection.FindOne(ctx, bson.M{"_id": questionID}).Decode(&q)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Question{}, fmt.Errorf("question %s: %w", questionID, domain.ErrQuestionNotFound)
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	return q, nil
}

// SaveQuestion upserts a question document.
func (l *QuestionLoader) SaveQuestion(ctx context.Context, q domain.Question) error {
	_, err := l.collection.ReplaceOne(ctx, bson.M{"_id": q.ID}, q, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save question: %w", err)
	}
	return nil
}
