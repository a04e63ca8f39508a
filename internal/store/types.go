package store

import (
	"encoding/json"
	"time"
)

// App is the persisted representation of an app definition.
type App struct {
	AppID      string          `json:"app_id"`
	Name       string          `json:"name"`
	Category   string          `json:"category,omitempty"`
	Definition json.RawMessage `json:"definition"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Instance is one running copy of an app's state within a simulation.
type Instance struct {
	ID        string          `json:"id"`
	AppID     string          `json:"app_id"`
	State     json.RawMessage `json:"state"` // schema.StateDoc
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Invocation is one entry of the append-only invocation log. Every
// invocation is recorded, success or failure; only successful ones carry a
// committed state.
type Invocation struct {
	ID           string          `json:"id"`
	InstanceID   string          `json:"instance_id"`
	AppID        string          `json:"app_id"`
	AgentID      string          `json:"agent_id"`
	Action       string          `json:"action"`
	Params       json.RawMessage `json:"params,omitempty"`
	Success      bool            `json:"success"`
	Value        json.RawMessage `json:"value,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Notification is a queued outbox entry awaiting host delivery.
type Notification struct {
	ID           int64      `json:"id"`
	InstanceID   string     `json:"instance_id"`
	InvocationID string     `json:"invocation_id"`
	Target       string     `json:"target"` // agent id or "*"
	Message      string     `json:"message"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
