package consumer

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

type SaveToMongoDB struct {
	client     *mongo.Client
	collection *mongo.Collection
	processors []processor.Processor
}

type MongoDBConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

func NewSaveToMongoDB(config map[string]interface{}) (*SaveToMongoDB, error) {
	dbConfig, err := parseMongoDBConfig(config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbConfig.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(dbConfig.URI)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create MongoDB client: %v", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	collection := client.Database(dbConfig.Database).Collection(dbConfig.Collection)

	log.Printf("Successfully connected to MongoDB database %s, collection %s",
		dbConfig.Database, dbConfig.Collection)

	return &SaveToMongoDB{
		client:     client,
		collection: collection,
	}, nil
}

func parseMongoDBConfig(config map[string]interface{}) (MongoDBConfig, error) {
	var dbConfig MongoDBConfig

	uri, ok := config["uri"].(string)
	if !ok {
		return dbConfig, fmt.Errorf("missing 'uri' in MongoDB configuration")
	}
	dbConfig.URI = uri

	database, ok := config["database"].(string)
	if !ok {
		return dbConfig, fmt.Errorf("missing 'database' in MongoDB configuration")
	}
	dbConfig.Database = database

	collection, ok := config["collection"].(string)
	if !ok {
		return dbConfig, fmt.Errorf("missing 'collection' in MongoDB configuration")
	}
	dbConfig.Collection = collection

	timeout, ok := config["connect_timeout"].(int)
	if !ok {
		timeout = 10
	}
	dbConfig.ConnectTimeout = time.Duration(timeout) * time.Second

	return dbConfig, nil
}

func (m *SaveToMongoDB) Subscribe(processor processor.Processor) {
	m.processors = append(m.processors, processor)
}

// Process replaces each customer's RFM document keyed by customer_id so
// repeated pipeline runs keep one document per customer.
func (m *SaveToMongoDB) Process(ctx context.Context, msg processor.Message) error {
	table, err := extractTable(msg)
	if err != nil {
		return fmt.Errorf("failed to extract RFM table: %v", err)
	}

	models := make([]mongo.WriteModel, 0, len(table.Rows))
	for _, row := range table.Rows {
		monetary, _ := row.Monetary.Float64()
		doc := bson.D{
			{Key: "customer_id", Value: row.CustomerID},
			{Key: "recency", Value: row.Recency},
			{Key: "frequency", Value: row.Frequency},
			{Key: "monetary", Value: monetary},
			{Key: "r_score", Value: row.RScore},
			{Key: "f_score", Value: row.FScore},
			{Key: "m_score", Value: row.MScore},
			{Key: "rfm_score", Value: row.RFMScore},
			{Key: "reference_date", Value: table.ReferenceDate},
			{Key: "computed_at", Value: time.Now().UTC()},
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "customer_id", Value: row.CustomerID}}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	writeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := m.collection.BulkWrite(writeCtx, models)
	if err != nil {
		return fmt.Errorf("failed to bulk write documents: %v", err)
	}

	log.Printf("SaveToMongoDB: upserted %d, modified %d customer documents",
		result.UpsertedCount, result.ModifiedCount)
	return nil
}

func (m *SaveToMongoDB) Close() error {
	if m.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return m.client.Disconnect(ctx)
	}
	return nil
}
