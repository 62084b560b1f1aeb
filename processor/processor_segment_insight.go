package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
)

// Segment labels produced by ClassifySegment.
const (
	SegmentLoyalHighValue   = "Loyal & High-Value"
	SegmentAtRisk           = "At Risk / Churned"
	SegmentEngagedLowSpend  = "Engaged, Low Spend"
	SegmentNewOneTime       = "New / One-Time"
	SegmentModerateActivity = "Moderate Activity"
)

// SegmentProfile is an average (recency, frequency, monetary) triple for a
// cluster or segment, typically uploaded alongside an externally computed
// Cluster column.
type SegmentProfile struct {
	Cluster   string  `json:"cluster,omitempty"`
	Recency   float64 `json:"recency"`
	Frequency float64 `json:"frequency"`
	Monetary  float64 `json:"monetary"`
}

// SegmentInsight is the classifier output for one profile.
type SegmentInsight struct {
	Cluster   string `json:"cluster,omitempty"`
	Label     string `json:"label"`
	Rationale string `json:"rationale"`
}

// SegmentInsightProcessor labels segment profiles with a fixed, ordered rule
// set. It accepts either a single SegmentProfile or a slice of them as the
// message payload.
type SegmentInsightProcessor struct {
	processors []Processor
}

func NewSegmentInsightProcessor(config map[string]interface{}) (*SegmentInsightProcessor, error) {
	return &SegmentInsightProcessor{}, nil
}

func (p *SegmentInsightProcessor) Subscribe(receiver Processor) {
	p.processors = append(p.processors, receiver)
}

func (p *SegmentInsightProcessor) Process(ctx context.Context, msg Message) error {
	var profiles []SegmentProfile

	switch payload := msg.Payload.(type) {
	case SegmentProfile:
		profiles = []SegmentProfile{payload}
	case []SegmentProfile:
		profiles = payload
	case []byte:
		if err := json.Unmarshal(payload, &profiles); err != nil {
			var single SegmentProfile
			if err2 := json.Unmarshal(payload, &single); err2 != nil {
				return fmt.Errorf("error unmarshaling segment profiles: %w", err)
			}
			profiles = []SegmentProfile{single}
		}
	default:
		return fmt.Errorf("expected SegmentProfile payload, got %T", msg.Payload)
	}

	insights := make([]SegmentInsight, len(profiles))
	for i, profile := range profiles {
		label, rationale, err := ClassifySegment(profile.Recency, profile.Frequency, profile.Monetary)
		if err != nil {
			return err
		}
		insights[i] = SegmentInsight{Cluster: profile.Cluster, Label: label, Rationale: rationale}
	}

	log.Printf("SegmentInsight: labeled %d profiles", len(insights))

	return ForwardToProcessors(ctx, insights, p.processors)
}

// ClassifySegment maps an average (recency, frequency, monetary) profile to a
// human-readable label. The rules are ordered and the first match wins; the
// final rule is an unconditional fallback.
func ClassifySegment(recency, frequency, monetary float64) (label, rationale string, err error) {
	for name, v := range map[string]float64{"recency": recency, "frequency": frequency, "monetary": monetary} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", "", &InvalidInputError{Field: name, Reason: fmt.Sprintf("value %v is not a usable number", v)}
		}
	}

	switch {
	case recency < 30 && frequency >= 3 && monetary > 3000:
		return SegmentLoyalHighValue,
			"Bought recently, buys often, and spends heavily.\nProtect this group: early access, loyalty rewards, personal outreach.",
			nil
	case recency > 60 && frequency <= 1:
		return SegmentAtRisk,
			"Has not purchased in over two months and never built a habit.\nWin-back offers or a lapse survey are the usual next step.",
			nil
	case frequency > 2 && monetary < 1000:
		return SegmentEngagedLowSpend,
			"Purchases frequently but in small amounts.\nGood candidates for upsell and bundle promotions.",
			nil
	case recency < 40 && frequency == 1:
		return SegmentNewOneTime,
			"A single recent purchase.\nOnboarding and a second-purchase incentive decide whether this customer sticks.",
			nil
	default:
		return SegmentModerateActivity,
			"Profile shows no extreme: neither loyal, lapsed, nor new.\nStandard lifecycle campaigns apply.",
			nil
	}
}
