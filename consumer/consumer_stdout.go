package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

// StdoutConsumer writes incoming payloads to stdout. RFM tables can be
// rendered as CSV with format: csv; everything else is emitted as JSON.
type StdoutConsumer struct {
	format string
}

func NewStdoutConsumer(config map[string]interface{}) (*StdoutConsumer, error) {
	format, ok := config["format"].(string)
	if !ok {
		format = "json"
	}
	switch format {
	case "json", "csv":
	default:
		return nil, fmt.Errorf("unsupported stdout format: %s", format)
	}
	return &StdoutConsumer{format: format}, nil
}

func (s *StdoutConsumer) Process(ctx context.Context, msg processor.Message) error {
	if s.format == "csv" {
		table, err := extractTable(msg)
		if err != nil {
			return fmt.Errorf("StdoutConsumer: %w", err)
		}
		return WriteTableCSV(os.Stdout, table)
	}

	var output []byte
	switch payload := msg.Payload.(type) {
	case []byte:
		output = payload
	default:
		var err error
		output, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("StdoutConsumer: error marshaling payload: %w", err)
		}
	}

	_, err := os.Stdout.Write(append(output, '\n'))
	return err
}

// Subscribe is a no-op: StdoutConsumer is a terminal sink.
func (s *StdoutConsumer) Subscribe(proc processor.Processor) {
}
