package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"taskchat-client/models"
)

// Rule is a user-defined notification predicate. Script is a JavaScript
// expression evaluated against each incoming message; a truthy result
// raises an alert on the UI socket.
type Rule struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId,omitempty"`
	Name           string `json:"name"`
	Script         string `json:"script"`
	Enabled        bool   `json:"enabled"`
}

// AlertNotification is the payload broadcast when a rule matches.
type AlertNotification struct {
	RuleID   string         `json:"ruleId"`
	RuleName string         `json:"ruleName"`
	Message  models.Message `json:"message"`
}

// AlertService evaluates rules against incoming messages and broadcasts
// matches to the UI clients.
type AlertService struct {
	hub   *Hub
	mu    sync.RWMutex
	rules map[string]*Rule
}

func NewAlertService(hub *Hub) *AlertService {
	return &AlertService{
		hub:   hub,
		rules: make(map[string]*Rule),
	}
}

// Add registers a rule, assigning its ID. The script is test-compiled so
// a broken rule is rejected instead of failing silently later.
func (as *AlertService) Add(rule Rule) (*Rule, error) {
	if rule.Script == "" {
		return nil, fmt.Errorf("alert rule needs a script")
	}
	if _, err := goja.Compile(rule.Name, rule.Script, false); err != nil {
		return nil, fmt.Errorf("compiling alert script: %w", err)
	}

	rule.ID = uuid.New().String()
	rule.Enabled = true

	as.mu.Lock()
	as.rules[rule.ID] = &rule
	as.mu.Unlock()

	return &rule, nil
}

// List returns all registered rules.
func (as *AlertService) List() []Rule {
	as.mu.RLock()
	defer as.mu.RUnlock()

	rules := make([]Rule, 0, len(as.rules))
	for _, r := range as.rules {
		rules = append(rules, *r)
	}
	return rules
}

// Delete removes a rule. Unknown IDs are a no-op.
func (as *AlertService) Delete(id string) {
	as.mu.Lock()
	delete(as.rules, id)
	as.mu.Unlock()
}

// Evaluate runs every enabled rule against the message. Script errors are
// logged and treated as non-matching.
func (as *AlertService) Evaluate(msg models.Message) {
	as.mu.RLock()
	rules := make([]*Rule, 0, len(as.rules))
	for _, r := range as.rules {
		rules = append(rules, r)
	}
	as.mu.RUnlock()

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if rule.ConversationID != "" && rule.ConversationID != msg.ConversationID {
			continue
		}
		if as.matches(rule, msg) {
			as.hub.Broadcast("alert", AlertNotification{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Message:  msg,
			})
		}
	}
}

func (as *AlertService) matches(rule *Rule, msg models.Message) bool {
	vm := goja.New()

	// The script sees the message as a plain object, same shape as the
	// wire format.
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		log.Printf("handlers: encoding message for rule %s: %v", rule.Name, err)
		return false
	}

	var asObject map[string]interface{}
	if err := json.Unmarshal(msgJSON, &asObject); err != nil {
		log.Printf("handlers: decoding message for rule %s: %v", rule.Name, err)
		return false
	}

	vm.Set("message", asObject)

	result, err := vm.RunString(rule.Script)
	if err != nil {
		log.Printf("handlers: rule %s failed: %v", rule.Name, err)
		return false
	}

	return result.ToBoolean()
}
