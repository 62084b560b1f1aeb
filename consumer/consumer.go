package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

// Consumer is a terminal pipeline stage that persists or publishes a scored
// table. Consumers satisfy processor.Processor so they can be subscribed
// anywhere in a chain.
type Consumer interface {
	Process(context.Context, processor.Message) error
	Subscribe(processor.Processor)
}

type ConsumerConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// extractTable accepts either a typed *RFMTable payload (direct from the
// aggregation processor) or its JSON encoding (after a ForwardToProcessors
// hop).
func extractTable(msg processor.Message) (*processor.RFMTable, error) {
	switch payload := msg.Payload.(type) {
	case *processor.RFMTable:
		return payload, nil
	case []byte:
		var table processor.RFMTable
		if err := json.Unmarshal(payload, &table); err != nil {
			return nil, fmt.Errorf("error unmarshaling RFM table: %w", err)
		}
		return &table, nil
	default:
		return nil, fmt.Errorf("expected *RFMTable or []byte payload, got %T", msg.Payload)
	}
}
