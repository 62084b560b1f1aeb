package processor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionFilterProcessor drops ledger rows before aggregation: by customer,
// by amount range, or by date range. An empty config passes everything through.
type TransactionFilterProcessor struct {
	customers  map[string]bool
	minAmount  *decimal.Decimal
	maxAmount  *decimal.Decimal
	after      time.Time
	before     time.Time
	processors []Processor
}

func NewTransactionFilterProcessor(config map[string]interface{}) (*TransactionFilterProcessor, error) {
	p := &TransactionFilterProcessor{}

	if raw, ok := config["customers"]; ok {
		list, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("customers must be a list")
		}
		p.customers = make(map[string]bool, len(list))
		for _, c := range list {
			id, ok := c.(string)
			if !ok {
				return nil, fmt.Errorf("all customers must be strings")
			}
			p.customers[id] = true
		}
	}

	if v, ok := config["min_amount"].(float64); ok {
		d := decimal.NewFromFloat(v)
		p.minAmount = &d
	}
	if v, ok := config["max_amount"].(float64); ok {
		d := decimal.NewFromFloat(v)
		p.maxAmount = &d
	}
	if p.minAmount != nil && p.maxAmount != nil && p.maxAmount.LessThan(*p.minAmount) {
		return nil, fmt.Errorf("max_amount must be >= min_amount")
	}

	for key, dst := range map[string]*time.Time{"after": &p.after, "before": &p.before} {
		if s, ok := config[key].(string); ok && s != "" {
			t, err := time.Parse("2006-01-02", s)
			if err != nil {
				return nil, fmt.Errorf("invalid %s date %q: %w", key, s, err)
			}
			*dst = t
		}
	}

	return p, nil
}

func (p *TransactionFilterProcessor) Subscribe(receiver Processor) {
	p.processors = append(p.processors, receiver)
}

func (p *TransactionFilterProcessor) Process(ctx context.Context, msg Message) error {
	ledger, err := ExtractLedger(msg)
	if err != nil {
		return err
	}

	filtered := make(Ledger, 0, len(ledger))
	for _, tx := range ledger {
		if p.matches(tx) {
			filtered = append(filtered, tx)
		}
	}

	if len(filtered) < len(ledger) {
		log.Printf("TransactionFilter: %d of %d rows passed", len(filtered), len(ledger))
	}

	for _, proc := range p.processors {
		if err := proc.Process(ctx, Message{Payload: filtered, Metadata: msg.Metadata}); err != nil {
			return fmt.Errorf("error in processor chain: %w", err)
		}
	}

	return nil
}

func (p *TransactionFilterProcessor) matches(tx Transaction) bool {
	if p.customers != nil && !p.customers[tx.CustomerID] {
		return false
	}
	if p.minAmount != nil && tx.Amount.LessThan(*p.minAmount) {
		return false
	}
	if p.maxAmount != nil && tx.Amount.GreaterThan(*p.maxAmount) {
		return false
	}
	if !p.after.IsZero() && tx.Timestamp.Before(p.after) {
		return false
	}
	if !p.before.IsZero() && tx.Timestamp.After(p.before) {
		return false
	}
	return true
}
