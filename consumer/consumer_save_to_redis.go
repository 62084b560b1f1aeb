package consumer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

// SaveToRedis stores each customer's RFM row as a hash and maintains
// per-segment sorted sets keyed by monetary value for quick lookups.
type SaveToRedis struct {
	client     *redis.Client
	processors []processor.Processor
	keyPrefix  string
	ttl        time.Duration
}

func NewSaveToRedis(config map[string]interface{}) (*SaveToRedis, error) {
	connStr, ok := config["connection_string"].(string)
	if !ok || connStr == "" {
		return nil, fmt.Errorf("missing or empty connection_string in config")
	}

	keyPrefix, _ := config["key_prefix"].(string)
	if keyPrefix == "" {
		keyPrefix = "rfm:"
	}

	ttlHours := 24
	if ttl, ok := config["ttl_hours"].(float64); ok {
		ttlHours = int(ttl)
	}
	if ttl, ok := config["ttl_hours"].(int); ok {
		ttlHours = ttl
	}

	opt, err := redis.ParseURL(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}

	client := redis.NewClient(opt)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &SaveToRedis{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       time.Duration(ttlHours) * time.Hour,
	}, nil
}

func (r *SaveToRedis) Subscribe(processor processor.Processor) {
	r.processors = append(r.processors, processor)
}

func (r *SaveToRedis) Process(ctx context.Context, msg processor.Message) error {
	table, err := extractTable(msg)
	if err != nil {
		return fmt.Errorf("error extracting RFM table: %w", err)
	}

	pipe := r.client.Pipeline()

	segmentKeys := make(map[string]struct{})
	for _, row := range table.Rows {
		key := fmt.Sprintf("%scustomer:%s", r.keyPrefix, row.CustomerID)
		monetary, _ := row.Monetary.Float64()

		pipe.HSet(ctx, key, map[string]interface{}{
			"customer_id":    row.CustomerID,
			"recency":        row.Recency,
			"frequency":      row.Frequency,
			"monetary":       row.Monetary.String(),
			"r_score":        row.RScore,
			"f_score":        row.FScore,
			"m_score":        row.MScore,
			"rfm_score":      row.RFMScore,
			"reference_date": table.ReferenceDate.UTC().Format(time.RFC3339),
			"stored_at":      time.Now().UTC().Format(time.RFC3339),
		})
		pipe.Expire(ctx, key, r.ttl)

		// Segment index: customers ranked by monetary within their RFM score.
		segmentKey := fmt.Sprintf("%ssegment:%s", r.keyPrefix, row.RFMScore)
		pipe.ZAdd(ctx, segmentKey, redis.Z{
			Score:  monetary,
			Member: row.CustomerID,
		})
		segmentKeys[segmentKey] = struct{}{}
	}

	for segmentKey := range segmentKeys {
		pipe.Expire(ctx, segmentKey, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("error executing Redis pipeline: %w", err)
	}

	log.Printf("SaveToRedis: stored %d customers across %d segments",
		len(table.Rows), len(segmentKeys))
	return nil
}

func (r *SaveToRedis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
