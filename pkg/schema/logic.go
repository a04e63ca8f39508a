package schema

// BlockType discriminates the kinds of logic blocks.
type BlockType string

const (
	BlockValidate BlockType = "validate"
	BlockUpdate   BlockType = "update"
	BlockNotify   BlockType = "notify"
	BlockReturn   BlockType = "return"
	BlockError    BlockType = "error"
	BlockBranch   BlockType = "branch"
	BlockLoop     BlockType = "loop"
)

// UpdateOp enumerates the state mutation operations.
type UpdateOp string

const (
	OpSet       UpdateOp = "set"
	OpIncrement UpdateOp = "increment"
	OpDecrement UpdateOp = "decrement"
	OpAppend    UpdateOp = "append"
	OpRemove    UpdateOp = "remove"
	OpMerge     UpdateOp = "merge"
)

// LogicBlock is one statement of an action's program, serialized as a
// discriminated object on the "type" field. Fields are shared across
// variants where their meaning coincides; the definition validator enforces
// which fields each variant requires.
//
// Expressions (condition, value, message, iterable, error_message) are
// plain strings in the wire format and are parsed once at app load.
type LogicBlock struct {
	Type BlockType `json:"type"`

	// validate, branch
	Condition string `json:"condition,omitempty"`

	// validate
	ErrorMessage string `json:"error_message,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`

	// update
	TargetPath string   `json:"target_path,omitempty"`
	Operation  UpdateOp `json:"operation,omitempty"`

	// update, return
	Value string `json:"value,omitempty"`

	// notify, error
	Message string `json:"message,omitempty"`

	// notify: an agent id, or "*" (or empty) for broadcast
	Target string `json:"target,omitempty"`

	// error
	Code string `json:"code,omitempty"`

	// branch
	Then []LogicBlock `json:"then,omitempty"`
	Else []LogicBlock `json:"else,omitempty"`

	// loop
	Iterable string       `json:"iterable,omitempty"`
	Binding  string       `json:"binding,omitempty"`
	Body     []LogicBlock `json:"body,omitempty"`
}

// BroadcastTarget is the notify target addressing every agent.
const BroadcastTarget = "*"

// IsBroadcast reports whether a notify target addresses all agents.
func IsBroadcast(target string) bool {
	return target == "" || target == BroadcastTarget
}
