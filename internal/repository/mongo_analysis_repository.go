// internal/repository/mongo_analysis_repository.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"risk-engine/internal/models"
)

const analysesCollection = "fraud_analyses"

// MongoAnalysisRepository keeps full analysis documents, including every
// factor's signals and measurements, in MongoDB.
type MongoAnalysisRepository struct {
	coll *mongo.Collection
}

func NewMongoAnalysisRepository(db *mongo.Database) *MongoAnalysisRepository {
	return &MongoAnalysisRepository{coll: db.Collection(analysesCollection)}
}

// EnsureIndexes creates the lookup and report indexes.
func (r *MongoAnalysisRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "transaction_id", Value: 1}, {Key: "analyzed_at", Value: -1}}},
		{Keys: bson.D{{Key: "analyzed_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create analysis indexes: %w", err)
	}
	return nil
}

func (r *MongoAnalysisRepository) SaveAnalysis(ctx context.Context, result *models.FraudAnalysisResult) error {
	_, err := r.coll.InsertOne(ctx, result)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

func (r *MongoAnalysisRepository) LatestAnalysis(ctx context.Context, transactionID string) (*models.FraudAnalysisResult, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "analyzed_at", Value: -1}})

	var result models.FraudAnalysisResult
	err := r.coll.FindOne(ctx, bson.M{"transaction_id": transactionID}, opts).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *MongoAnalysisRepository) ListAnalyses(ctx context.Context, from, to time.Time) ([]*models.FraudAnalysisResult, error) {
	filter := bson.M{"analyzed_at": bson.M{"$gte": from, "$lte": to}}
	opts := options.Find().SetSort(bson.D{{Key: "analyzed_at", Value: 1}})

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*models.FraudAnalysisResult
	for cursor.Next(ctx) {
		var a models.FraudAnalysisResult
		if err := cursor.Decode(&a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, cursor.Err()
}
