package consumer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

func TestParseNotificationRule(t *testing.T) {
	rule, err := parseNotificationRule(map[string]interface{}{
		"field":     "at_risk_share",
		"condition": "gt",
		"value":     0.25,
		"channels":  []interface{}{"slack", "webhook"},
	})
	require.NoError(t, err)
	assert.Equal(t, "at_risk_share", rule.Field)
	assert.Equal(t, "gt", rule.Condition)
	assert.Equal(t, 0.25, rule.Value)
	assert.Equal(t, []string{"slack", "webhook"}, rule.Channels)
}

func TestParseNotificationRuleRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		rule map[string]interface{}
	}{
		{"unknown field", map[string]interface{}{"field": "velocity", "condition": "gt", "value": 1.0}},
		{"unknown condition", map[string]interface{}{"field": "customer_count", "condition": "near", "value": 1.0}},
		{"missing value", map[string]interface{}{"field": "customer_count", "condition": "gt"}},
		{"bad string value", map[string]interface{}{"field": "customer_count", "condition": "gt", "value": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseNotificationRule(tt.rule)
			assert.Error(t, err)
		})
	}
}

// Rule mappings arriving through a YAML pipeline file decode with
// interface{} keys, not string keys.
func TestNewNotificationDispatcherFromYAMLConfig(t *testing.T) {
	raw := `
config:
  slack_token: xoxb-test
  slack_channels:
    - "#customer-health"
  rules:
    - field: at_risk_share
      condition: gt
      value: 0.3
      channels:
        - slack
`
	var cfg struct {
		Config map[string]interface{} `yaml:"config"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))

	n, err := NewNotificationDispatcher(cfg.Config)
	require.NoError(t, err)
	require.Len(t, n.rules, 1)
	assert.Equal(t, "at_risk_share", n.rules[0].Field)
	assert.Equal(t, "gt", n.rules[0].Condition)
	assert.Equal(t, 0.3, n.rules[0].Value)
	assert.Equal(t, []string{"slack"}, n.rules[0].Channels)
}

func TestTableMetrics(t *testing.T) {
	table := &processor.RFMTable{
		ReferenceDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Rows: []processor.CustomerRFM{
			// classifies as Loyal & High-Value
			{CustomerID: "A", Recency: 10, Frequency: 5, Monetary: decimal.NewFromInt(5000)},
			// classifies as At Risk / Churned
			{CustomerID: "B", Recency: 90, Frequency: 1, Monetary: decimal.NewFromInt(20)},
			// classifies as At Risk / Churned
			{CustomerID: "C", Recency: 75, Frequency: 1, Monetary: decimal.NewFromInt(80)},
			// classifies as Moderate Activity
			{CustomerID: "D", Recency: 50, Frequency: 2, Monetary: decimal.NewFromInt(900)},
		},
	}

	metrics := tableMetrics(table)
	assert.Equal(t, 4.0, metrics["customer_count"])
	assert.Equal(t, 6000.0, metrics["total_monetary"])
	assert.Equal(t, 0.5, metrics["at_risk_share"])
	assert.Equal(t, 0.25, metrics["loyal_share"])
}

func TestShouldNotifyAppliesCooldown(t *testing.T) {
	n := &NotificationDispatcher{
		notificationLog: make(map[string]time.Time),
		cooldown:        5 * time.Minute,
	}
	rule := NotificationRule{Field: "at_risk_share", Condition: "gt", Value: 0.3}

	assert.False(t, n.shouldNotify(rule, 0.2), "threshold not crossed")
	assert.True(t, n.shouldNotify(rule, 0.5), "first crossing fires")
	assert.False(t, n.shouldNotify(rule, 0.6), "second crossing suppressed within cooldown")
}

func TestNewNotificationDispatcherRequiresRules(t *testing.T) {
	_, err := NewNotificationDispatcher(map[string]interface{}{})
	assert.Error(t, err)

	_, err = NewNotificationDispatcher(map[string]interface{}{
		"rules": []interface{}{},
	})
	assert.Error(t, err)
}
