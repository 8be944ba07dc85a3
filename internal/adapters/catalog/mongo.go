package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
)

// Mongo читает каталог из коллекции MongoDB.
type Mongo struct {
	client *mongo.Client
	col    *mongo.Collection
}

// NewMongo подключается к MongoDB.
func NewMongo(ctx context.Context, uri, database, collection string) (*Mongo, error) {
	if uri == "" {
		return nil, errors.New("MONGODB_URI is empty")
	}
	start := time.Now()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err == nil {
		err = client.Ping(ctx, nil)
	}
	metrics.ObserveNetworkRequest("mongo", "connect", database, start, err)
	if err != nil {
		return nil, fmt.Errorf("mongo: %w", err)
	}
	col := client.Database(database).Collection(collection)
	_, _ = col.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{bson.E{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)})
	return &Mongo{client: client, col: col}, nil
}

// Close закрывает соединение.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// ListMovies реализует domain.CatalogRepo.
func (m *Mongo) ListMovies(ctx context.Context) ([]domain.Movie, error) {
	start := time.Now()
	opts := options.Find().SetSort(bson.D{bson.E{Key: "code", Value: 1}})
	cur, err := m.col.Find(ctx, bson.M{}, opts)
	metrics.ObserveNetworkRequest("mongo", "find", "movies", start, err)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var movies []domain.Movie
	for cur.Next(ctx) {
		var movie domain.Movie
		if err := cur.Decode(&movie); err != nil {
			continue
		}
		if movie.Code == "" || movie.Title == "" {
			continue
		}
		movies = append(movies, movie)
	}
	return movies, cur.Err()
}

// UpsertMovies реализует domain.CatalogWriter.
func (m *Mongo) UpsertMovies(ctx context.Context, movies []domain.Movie) (int, error) {
	if len(movies) == 0 {
		return 0, nil
	}
	models := make([]mongo.WriteModel, 0, len(movies))
	for _, movie := range movies {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"code": movie.Code}).
			SetUpdate(bson.M{"$set": movie}).
			SetUpsert(true))
	}
	start := time.Now()
	_, err := m.col.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	metrics.ObserveNetworkRequest("mongo", "bulk_upsert", "movies", start, err)
	if err != nil {
		return 0, err
	}
	return len(movies), nil
}
