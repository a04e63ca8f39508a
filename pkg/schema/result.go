package schema

// ActionResult is the complete outcome of one action invocation. The
// interpreter's contract is total: every invocation produces exactly one
// ActionResult, whether the action succeeded, failed a validation, raised
// an evaluation error, or tripped a safety limit.
type ActionResult struct {
	Success       bool           `json:"success"`
	Value         any            `json:"value,omitempty"`
	Error         *AppError      `json:"error,omitempty"`
	Notifications []Notification `json:"notifications,omitempty"`

	// NewState is present only on success and holds the mutated working
	// copy. Callers persist it through their storage layer; on failure the
	// working copy is discarded and NewState is nil.
	NewState *StateDoc `json:"new_state,omitempty"`
}

// Notification is a side-channel message emitted by a notify block,
// collected in invocation order. Delivery is the host's responsibility.
type Notification struct {
	// Target is an agent id, or "*" for broadcast.
	Target  string `json:"target"`
	Message string `json:"message"`
}

// Broadcast reports whether the notification addresses every agent.
func (n Notification) Broadcast() bool {
	return IsBroadcast(n.Target)
}

// StateDoc is the wire representation of one app instance's state: a shared
// partition visible to all agents, and per-agent partitions keyed first by
// agent id, then by field name.
type StateDoc struct {
	Shared   map[string]any            `json:"shared,omitempty"`
	PerAgent map[string]map[string]any `json:"per_agent,omitempty"`
}
