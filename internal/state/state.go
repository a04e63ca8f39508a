// Package state implements the two-tier app instance state the interpreter
// mutates: a shared partition visible to all agents, and per-agent
// partitions keyed by agent id. Mutation goes through the six update
// operations only; every invocation works on a deep copy so a failed
// action never leaks partial writes into durable state.
package state

import (
	"encoding/json"

	"github.com/rendis/applogic/internal/value"
	"github.com/rendis/applogic/pkg/schema"
)

// AppState is one app instance's full state.
type AppState struct {
	Shared   map[string]value.Value
	PerAgent map[string]map[string]value.Value
}

// New returns an empty state.
func New() *AppState {
	return &AppState{
		Shared:   map[string]value.Value{},
		PerAgent: map[string]map[string]value.Value{},
	}
}

// FromDoc converts the wire representation into runtime state.
func FromDoc(doc *schema.StateDoc) (*AppState, error) {
	s := New()
	if doc == nil {
		return s, nil
	}
	for k, raw := range doc.Shared {
		v, err := value.FromAny(raw)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeDefinition,
				"invalid shared state field %q: %s", k, err.Error()).WithCause(err)
		}
		s.Shared[k] = v
	}
	for agentID, fields := range doc.PerAgent {
		part := make(map[string]value.Value, len(fields))
		for k, raw := range fields {
			v, err := value.FromAny(raw)
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeDefinition,
					"invalid per-agent state field %q for agent %q: %s", k, agentID, err.Error()).WithCause(err)
			}
			part[k] = v
		}
		s.PerAgent[agentID] = part
	}
	return s, nil
}

// Doc converts runtime state into the wire representation.
func (s *AppState) Doc() *schema.StateDoc {
	doc := &schema.StateDoc{
		Shared:   make(map[string]any, len(s.Shared)),
		PerAgent: make(map[string]map[string]any, len(s.PerAgent)),
	}
	for k, v := range s.Shared {
		doc.Shared[k] = v.ToAny()
	}
	for agentID, part := range s.PerAgent {
		fields := make(map[string]any, len(part))
		for k, v := range part {
			fields[k] = v.ToAny()
		}
		doc.PerAgent[agentID] = fields
	}
	return doc
}

// Clone returns a deep copy: the invocation-scoped working copy.
func (s *AppState) Clone() *AppState {
	cp := &AppState{
		Shared:   make(map[string]value.Value, len(s.Shared)),
		PerAgent: make(map[string]map[string]value.Value, len(s.PerAgent)),
	}
	for k, v := range s.Shared {
		cp.Shared[k] = v.Clone()
	}
	for agentID, part := range s.PerAgent {
		p := make(map[string]value.Value, len(part))
		for k, v := range part {
			p[k] = v.Clone()
		}
		cp.PerAgent[agentID] = p
	}
	return cp
}

// AgentPartition returns the partition for an agent, creating it when
// absent.
func (s *AppState) AgentPartition(agentID string) map[string]value.Value {
	part, ok := s.PerAgent[agentID]
	if !ok {
		part = map[string]value.Value{}
		s.PerAgent[agentID] = part
	}
	return part
}

// SerializedSize returns the byte length of the state's JSON form.
func (s *AppState) SerializedSize() int {
	b, err := json.Marshal(s.Doc())
	if err != nil {
		return 0
	}
	return len(b)
}

// CheckSize verifies the serialized size against the configured ceiling.
// Called after every mutating block, not just at the end.
func (s *AppState) CheckSize(maxBytes int) *schema.AppError {
	size := s.SerializedSize()
	if size <= maxBytes {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeStateSizeLimit,
		"state size %d bytes exceeds limit of %d bytes", size, maxBytes).
		WithDetails(map[string]any{"size_bytes": size, "limit_bytes": maxBytes})
}

// Apply performs one update operation against a partition at the given
// path. The path root addresses a field of the partition; deeper segments
// address positions inside that field's value. Writes are strict: missing
// intermediate containers are errors, only the final map key (or the
// partition field itself) may be created.
func Apply(partition map[string]value.Value, path value.Path, op schema.UpdateOp, v value.Value) *schema.AppError {
	rest := path.Rest()
	root := path.Root()

	if len(rest) == 0 {
		current, exists := partition[root]
		updated, err := applyOp(current, exists, op, v, path.String())
		if err != nil {
			return err
		}
		partition[root] = updated
		return nil
	}

	rootVal, ok := partition[root]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeUnknownPath,
			"cannot write %q: field %q does not exist", path.String(), root)
	}

	// Resolve the parent container, then handle the final segment so a
	// missing final map key can still be created by set.
	parent := rootVal
	if len(rest) > 1 {
		resolved, err := value.Get(rootVal, rest[:len(rest)-1])
		if err != nil {
			return pathToAppError(err, path.String())
		}
		parent = resolved
	}

	last := rest[len(rest)-1]
	current, exists, err := resolveFinal(parent, last, path.String())
	if err != nil {
		return err
	}

	updated, err := applyOp(current, exists, op, v, path.String())
	if err != nil {
		return err
	}

	if werr := value.Set(parent, []value.Segment{last}, updated); werr != nil {
		return pathToAppError(werr, path.String())
	}
	return nil
}

// resolveFinal reads the final path segment, distinguishing "absent map
// key" (creatable) from structural failures.
func resolveFinal(parent value.Value, seg value.Segment, path string) (value.Value, bool, *schema.AppError) {
	if seg.IsIndex {
		items, ok := parent.AsList()
		if !ok {
			return value.Null, false, schema.NewErrorf(schema.ErrCodeTypeMismatch,
				"cannot write %q: cannot index %s", path, parent.TypeName())
		}
		if seg.Index < 0 || seg.Index >= len(items) {
			return value.Null, false, schema.NewErrorf(schema.ErrCodeUnknownPath,
				"cannot write %q: index %d out of range (len %d)", path, seg.Index, len(items))
		}
		return items[seg.Index], true, nil
	}
	m, ok := parent.AsMap()
	if !ok {
		return value.Null, false, schema.NewErrorf(schema.ErrCodeTypeMismatch,
			"cannot write %q: cannot access key %q on %s", path, seg.Key, parent.TypeName())
	}
	current, exists := m[seg.Key]
	return current, exists, nil
}

// applyOp computes the new value for one operation against the current
// slot content.
func applyOp(current value.Value, exists bool, op schema.UpdateOp, v value.Value, path string) (value.Value, *schema.AppError) {
	switch op {
	case schema.OpSet:
		return v, nil

	case schema.OpIncrement, schema.OpDecrement:
		base := 0.0
		if exists && !current.IsNull() {
			n, ok := current.AsNumber()
			if !ok {
				return value.Null, schema.NewErrorf(schema.ErrCodeTypeMismatch,
					"cannot %s %q: existing value is %s, not number", op, path, current.TypeName())
			}
			base = n
		}
		delta, ok := v.AsNumber()
		if !ok {
			return value.Null, schema.NewErrorf(schema.ErrCodeTypeMismatch,
				"cannot %s %q: operand is %s, not number", op, path, v.TypeName())
		}
		if op == schema.OpDecrement {
			delta = -delta
		}
		return value.Num(base + delta), nil

	case schema.OpAppend:
		items, ok := current.AsList()
		if !ok {
			return value.Null, schema.NewErrorf(schema.ErrCodeTypeMismatch,
				"cannot append to %q: target is %s, not list", path, typeNameOrMissing(current, exists))
		}
		out := make([]value.Value, len(items), len(items)+1)
		copy(out, items)
		out = append(out, v)
		return value.List(out...), nil

	case schema.OpRemove:
		items, ok := current.AsList()
		if !ok {
			return value.Null, schema.NewErrorf(schema.ErrCodeTypeMismatch,
				"cannot remove from %q: target is %s, not list", path, typeNameOrMissing(current, exists))
		}
		// Removes the first structurally-equal element; absent is a no-op.
		out := make([]value.Value, 0, len(items))
		removed := false
		for _, e := range items {
			if !removed && e.Equal(v) {
				removed = true
				continue
			}
			out = append(out, e)
		}
		return value.List(out...), nil

	case schema.OpMerge:
		m, ok := current.AsMap()
		if !ok {
			return value.Null, schema.NewErrorf(schema.ErrCodeTypeMismatch,
				"cannot merge into %q: target is %s, not map", path, typeNameOrMissing(current, exists))
		}
		src, ok := v.AsMap()
		if !ok {
			return value.Null, schema.NewErrorf(schema.ErrCodeTypeMismatch,
				"cannot merge into %q: operand is %s, not map", path, v.TypeName())
		}
		out := make(map[string]value.Value, len(m)+len(src))
		for k, e := range m {
			out[k] = e
		}
		for k, e := range src {
			out[k] = e
		}
		return value.Map(out), nil
	}

	return value.Null, schema.NewErrorf(schema.ErrCodeDefinition, "unknown update operation %q", op)
}

func typeNameOrMissing(v value.Value, exists bool) string {
	if !exists {
		return "missing"
	}
	return v.TypeName()
}

// pathToAppError maps a value.PathError onto the engine error taxonomy.
func pathToAppError(err error, path string) *schema.AppError {
	if pe, ok := err.(*value.PathError); ok {
		code := schema.ErrCodeUnknownPath
		if pe.Kind == value.PathTypeMismatch {
			code = schema.ErrCodeTypeMismatch
		}
		return schema.NewErrorf(code, "cannot write %q: %s", path, pe.Msg)
	}
	return schema.NewErrorf(schema.ErrCodeUnknownPath, "cannot write %q: %s", path, err.Error())
}
