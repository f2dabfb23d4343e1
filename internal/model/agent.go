package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Agent represents a configured AI agent that can be routed to conversations
// and generate automatic replies.
type Agent struct {
	ID int64 `json:"-" gorm:"primaryKey;autoIncrement"`
	// AgentID is the external identifier for this agent.
	AgentID string `json:"agent_id" gorm:"column:agent_id;uniqueIndex" validate:"required"`
	// Name is the agent's display name, surfaced to the router LLM.
	Name string `json:"name" gorm:"column:name" validate:"required"`
	// Description tells the router which conversations this agent handles.
	Description string `json:"description,omitempty" gorm:"column:description"`
	// SystemPrompt is the base instruction block for reply generation.
	SystemPrompt string `json:"system_prompt,omitempty" gorm:"column:system_prompt"`
	// CommunicationStyle describes the tone and persona the agent replies
	// with, surfaced to both the router and the reply prompt.
	CommunicationStyle string `json:"communication_style,omitempty" gorm:"column:communication_style"`
	// HandoffRules states when the agent should stop and hand the thread to
	// a human operator.
	HandoffRules string `json:"handoff_rules,omitempty" gorm:"column:handoff_rules"`
	// Enabled removes the agent from routing when false.
	Enabled bool `json:"enabled,omitempty" gorm:"column:enabled;default:true"`
	// AccountID identifies the account/tenant this agent belongs to.
	AccountID string `json:"account_id,omitempty" gorm:"column:account_id;index"`
	// KnowledgeData holds free-form reference material injected into the
	// system prompt.
	KnowledgeData datatypes.JSON `json:"knowledge_data,omitempty" gorm:"type:jsonb;column:knowledge_data"`
	// Attributes holds structured agent settings (tone, language, limits).
	Attributes datatypes.JSON `json:"attributes,omitempty" gorm:"type:jsonb;column:attributes"`
	CreatedAt  time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Agent) TableName() string {
	return "agents"
}

// KnowledgeText flattens KnowledgeData into prompt-ready text. Accepts either
// a JSON string or an array of strings; anything else is returned verbatim.
func (a *Agent) KnowledgeText() string {
	if len(a.KnowledgeData) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(a.KnowledgeData, &s); err == nil {
		return s
	}
	var items []string
	if err := json.Unmarshal(a.KnowledgeData, &items); err == nil {
		out := ""
		for i, item := range items {
			if i > 0 {
				out += "\n"
			}
			out += item
		}
		return out
	}
	return string(a.KnowledgeData)
}

// AttributeString returns a string attribute by key, empty when absent or
// not a string.
func (a *Agent) AttributeString(key string) string {
	if len(a.Attributes) == 0 {
		return ""
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal(a.Attributes, &attrs); err != nil {
		return ""
	}
	if v, ok := attrs[key].(string); ok {
		return v
	}
	return ""
}

// AttributeStrings returns an array-valued attribute by key. A scalar string
// value is returned as a single-element slice.
func (a *Agent) AttributeStrings(key string) []string {
	if len(a.Attributes) == 0 {
		return nil
	}
	var attrs map[string]json.RawMessage
	if err := json.Unmarshal(a.Attributes, &attrs); err != nil {
		return nil
	}
	raw, ok := attrs[key]
	if !ok {
		return nil
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err == nil {
		return items
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return []string{s}
	}
	return nil
}
