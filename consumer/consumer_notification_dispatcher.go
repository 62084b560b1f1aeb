package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

// NotificationRule fires when a metric derived from the scored table
// crosses a threshold. Supported fields: customer_count, total_monetary,
// at_risk_share, loyal_share.
type NotificationRule struct {
	Field     string   `json:"field"`
	Condition string   `json:"condition"` // gt, lt, eq
	Value     float64  `json:"value"`
	Channels  []string `json:"channels"` // slack, webhook
}

// NotificationDispatcher watches each scored RFM table and alerts
// Slack channels or webhooks when rule thresholds are crossed.
type NotificationDispatcher struct {
	rules           []NotificationRule
	slackClient     *slack.Client
	slackChannels   []string
	webhookURLs     []string
	processors      []processor.Processor
	notificationLog map[string]time.Time
	cooldown        time.Duration
	mutex           sync.RWMutex
}

func NewNotificationDispatcher(config map[string]interface{}) (*NotificationDispatcher, error) {
	slackToken, _ := config["slack_token"].(string)
	slackChannels := toStringSlice(config["slack_channels"])
	webhookURLs := toStringSlice(config["webhook_urls"])

	rulesData, ok := config["rules"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid rules configuration")
	}

	var rules []NotificationRule
	for _, r := range rulesData {
		ruleMap, ok := normalizeRuleMap(r)
		if !ok {
			continue
		}
		rule, err := parseNotificationRule(ruleMap)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("no valid rules in configuration")
	}

	cooldownMinutes := 5
	if cd, ok := config["cooldown_minutes"].(int); ok {
		cooldownMinutes = cd
	}

	dispatcher := &NotificationDispatcher{
		rules:           rules,
		slackChannels:   slackChannels,
		webhookURLs:     webhookURLs,
		notificationLog: make(map[string]time.Time),
		cooldown:        time.Duration(cooldownMinutes) * time.Minute,
	}

	if slackToken != "" {
		dispatcher.slackClient = slack.New(slackToken)
	}

	return dispatcher, nil
}

// normalizeRuleMap accepts rule mappings in both decoded shapes: yaml.v2
// produces map[interface{}]interface{} for nested mappings, JSON produces
// map[string]interface{}.
func normalizeRuleMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for key, val := range m {
			s, ok := key.(string)
			if !ok {
				return nil, false
			}
			out[s] = val
		}
		return out, true
	}
	return nil, false
}

func parseNotificationRule(ruleMap map[string]interface{}) (NotificationRule, error) {
	var rule NotificationRule

	field, ok := ruleMap["field"].(string)
	if !ok {
		return rule, fmt.Errorf("rule missing field")
	}
	switch field {
	case "customer_count", "total_monetary", "at_risk_share", "loyal_share":
	default:
		return rule, fmt.Errorf("unsupported rule field: %s", field)
	}
	rule.Field = field

	condition, ok := ruleMap["condition"].(string)
	if !ok {
		return rule, fmt.Errorf("rule missing condition")
	}
	switch condition {
	case "gt", "lt", "eq":
	default:
		return rule, fmt.Errorf("unsupported rule condition: %s", condition)
	}
	rule.Condition = condition

	switch v := ruleMap["value"].(type) {
	case float64:
		rule.Value = v
	case int:
		rule.Value = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return rule, fmt.Errorf("invalid rule value %q: %v", v, err)
		}
		rule.Value = parsed
	default:
		return rule, fmt.Errorf("rule missing value")
	}

	rule.Channels = toStringSlice(ruleMap["channels"])
	if len(rule.Channels) == 0 {
		rule.Channels = []string{"slack"}
	}

	return rule, nil
}

func toStringSlice(v interface{}) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		var out []string
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (n *NotificationDispatcher) Subscribe(processor processor.Processor) {
	n.processors = append(n.processors, processor)
}

func (n *NotificationDispatcher) Process(ctx context.Context, msg processor.Message) error {
	table, err := extractTable(msg)
	if err != nil {
		return fmt.Errorf("error extracting RFM table: %w", err)
	}

	metrics := tableMetrics(table)

	for _, rule := range n.rules {
		value, ok := metrics[rule.Field]
		if !ok {
			continue
		}
		if n.shouldNotify(rule, value) {
			if err := n.dispatchNotifications(ctx, rule, value, table); err != nil {
				log.Printf("Error dispatching notifications: %v", err)
			}
		}
	}

	return nil
}

// tableMetrics derives the alertable metrics from a scored table. Shares
// use the insight classifier so thresholds line up with segment labels.
func tableMetrics(table *processor.RFMTable) map[string]float64 {
	total := len(table.Rows)
	metrics := map[string]float64{
		"customer_count": float64(total),
	}

	var totalMonetary float64
	var atRisk, loyal int
	for _, row := range table.Rows {
		monetary, _ := row.Monetary.Float64()
		totalMonetary += monetary

		label, _, err := processor.ClassifySegment(float64(row.Recency), float64(row.Frequency), monetary)
		if err != nil {
			continue
		}
		switch label {
		case processor.SegmentAtRisk:
			atRisk++
		case processor.SegmentLoyalHighValue:
			loyal++
		}
	}

	metrics["total_monetary"] = totalMonetary
	if total > 0 {
		metrics["at_risk_share"] = float64(atRisk) / float64(total)
		metrics["loyal_share"] = float64(loyal) / float64(total)
	}

	return metrics
}

func (n *NotificationDispatcher) shouldNotify(rule NotificationRule, value float64) bool {
	var crossed bool
	switch rule.Condition {
	case "gt":
		crossed = value > rule.Value
	case "lt":
		crossed = value < rule.Value
	case "eq":
		crossed = value == rule.Value
	}
	if !crossed {
		return false
	}

	key := fmt.Sprintf("%s-%s", rule.Field, rule.Condition)
	n.mutex.RLock()
	lastNotification, exists := n.notificationLog[key]
	n.mutex.RUnlock()

	if exists && time.Since(lastNotification) < n.cooldown {
		return false
	}

	n.mutex.Lock()
	n.notificationLog[key] = time.Now()
	n.mutex.Unlock()

	return true
}

func (n *NotificationDispatcher) dispatchNotifications(ctx context.Context, rule NotificationRule, value float64, table *processor.RFMTable) error {
	message := fmt.Sprintf("RFM alert: %s is %.4f (%s %.4f) across %d customers, reference date %s",
		rule.Field, value, rule.Condition, rule.Value, len(table.Rows),
		table.ReferenceDate.UTC().Format("2006-01-02"))

	for _, channel := range rule.Channels {
		switch channel {
		case "slack":
			if err := n.sendSlackNotification(message); err != nil {
				log.Printf("Error sending Slack notification: %v", err)
			}
		case "webhook":
			if err := n.sendWebhookNotification(ctx, message); err != nil {
				log.Printf("Error sending webhook notification: %v", err)
			}
		}
	}

	return nil
}

func (n *NotificationDispatcher) sendSlackNotification(message string) error {
	if n.slackClient == nil {
		return fmt.Errorf("slack client not initialized")
	}

	for _, channel := range n.slackChannels {
		_, _, err := n.slackClient.PostMessage(
			channel,
			slack.MsgOptionText(message, false),
		)
		if err != nil {
			return fmt.Errorf("error sending slack message: %w", err)
		}
	}
	return nil
}

func (n *NotificationDispatcher) sendWebhookNotification(ctx context.Context, message string) error {
	payload := map[string]interface{}{
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling payload: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	for _, url := range n.webhookURLs {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonPayload))
		if err != nil {
			return fmt.Errorf("error creating webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("error sending webhook request: %w", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("received non-200 response: %d", resp.StatusCode)
		}
	}
	return nil
}

func (n *NotificationDispatcher) Close() error {
	return nil
}
