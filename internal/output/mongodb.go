// internal/output/mongodb.go
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBWriter writes result rows to a MongoDB collection.
type MongoDBWriter struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

// NewMongoDBWriter creates a new MongoDB writer from a connection string.
func NewMongoDBWriter(uri, database, collection string) (*MongoDBWriter, error) {
	if uri == "" {
		return nil, fmt.Errorf("MongoDB connection string is required")
	}
	if database == "" || collection == "" {
		return nil, fmt.Errorf("MongoDB database and collection are required")
	}

	timeout := 10 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoDBWriter{
		client:     client,
		collection: client.Database(database).Collection(collection),
		timeout:    timeout,
	}, nil
}

// Write inserts rows as documents. The data JSON is stored structured, not
// as a string, so it stays queryable.
func (w *MongoDBWriter) Write(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		doc := bson.M{
			"target":       row.Target,
			"success":      row.Success,
			"duration_ms":  row.DurationMS,
			"harvested_at": row.HarvestedAt,
		}
		if row.Error != "" {
			doc["error"] = row.Error
			doc["error_kind"] = row.ErrorKind
		}
		if row.Data != "" {
			var data interface{}
			if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
				return fmt.Errorf("failed to decode data for %s: %w", row.Target, err)
			}
			doc["data"] = data
		}
		docs = append(docs, doc)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if _, err := w.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert documents: %w", err)
	}
	return nil
}

// Close disconnects the MongoDB client.
func (w *MongoDBWriter) Close() error {
	if w.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	err := w.client.Disconnect(ctx)
	w.client = nil
	return err
}
