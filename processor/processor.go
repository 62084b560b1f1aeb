package processor

import (
	"context"
	"encoding/json"
	"fmt"
)

// Processor defines the interface for processing messages.
type Processor interface {
	Process(context.Context, Message) error
	Subscribe(Processor)
}

type ProcessorConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// Message encapsulates the payload to be processed with optional metadata.
type Message struct {
	Payload  interface{}            `json:"payload"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// LedgerSourceMetadata describes where a transaction ledger was read from.
type LedgerSourceMetadata struct {
	SourceType string `json:"source_type"` // "CSV", "FS", "S3", "GCS"
	BucketName string `json:"bucket_name,omitempty"`
	FilePath   string `json:"file_path"`
	FileName   string `json:"file_name"`
	RowCount   int    `json:"row_count"`
}

// GetLedgerSourceMetadata extracts ledger source metadata from the message.
func (m *Message) GetLedgerSourceMetadata() (*LedgerSourceMetadata, bool) {
	if m.Metadata == nil {
		return nil, false
	}

	sourceData, exists := m.Metadata["ledger_source"]
	if !exists {
		return nil, false
	}

	if sourceMeta, ok := sourceData.(*LedgerSourceMetadata); ok {
		return sourceMeta, true
	}

	return nil, false
}

// ExtractLedger extracts a Ledger from a processor.Message.
func ExtractLedger(msg Message) (Ledger, error) {
	ledger, ok := msg.Payload.(Ledger)
	if !ok {
		return nil, fmt.Errorf("expected Ledger, got %T", msg.Payload)
	}
	return ledger, nil
}

// ExtractRFMTable extracts an RFMTable from a processor.Message.
func ExtractRFMTable(msg Message) (*RFMTable, error) {
	table, ok := msg.Payload.(*RFMTable)
	if !ok {
		return nil, fmt.Errorf("expected *RFMTable, got %T", msg.Payload)
	}
	return table, nil
}

// ForwardToProcessors marshals the payload and forwards it to all downstream processors
func ForwardToProcessors(ctx context.Context, payload interface{}, processors []Processor) error {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling payload: %w", err)
	}

	for _, processor := range processors {
		if err := processor.Process(ctx, Message{Payload: jsonBytes}); err != nil {
			return fmt.Errorf("error in processor chain: %w", err)
		}
	}

	return nil
}
