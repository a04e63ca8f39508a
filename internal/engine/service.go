package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/applogic/internal/logging"
	"github.com/rendis/applogic/internal/store"
	"github.com/rendis/applogic/pkg/schema"
)

// Service binds the pure Engine to the persistence collaborator: it loads
// instance state, executes the action, and on success atomically commits
// the mutated state, the invocation log entry, and queued notifications.
// Failed invocations persist only their log entry.
//
// The service assumes at most one in-flight invocation per instance; the
// host scheduler serializes concurrent actions against the same instance.
type Service struct {
	engine *Engine
	store  store.Store
	logger *slog.Logger
}

// NewService creates a Service over an Engine and a Store.
func NewService(engine *Engine, st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, store: st, logger: logger}
}

// CreateApp validates, compiles, and persists a raw app definition.
func (s *Service) CreateApp(ctx context.Context, raw []byte) (*schema.AppDefinition, error) {
	def, aerr := s.engine.LoadApp(raw)
	if aerr != nil {
		return nil, aerr
	}
	rec := &store.App{
		AppID:      def.AppID,
		Name:       def.Name,
		Category:   def.Category,
		Definition: json.RawMessage(raw),
	}
	if err := s.store.SaveApp(ctx, rec); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "save app %q: %s", def.AppID, err.Error()).WithCause(err)
	}
	return def, nil
}

// LoadApps loads and compiles every persisted definition, typically at
// startup.
func (s *Service) LoadApps(ctx context.Context) error {
	apps, err := s.store.ListApps(ctx)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "list apps").WithCause(err)
	}
	for _, rec := range apps {
		if _, aerr := s.engine.LoadApp(rec.Definition); aerr != nil {
			return fmt.Errorf("load app %q: %w", rec.AppID, aerr)
		}
	}
	return nil
}

// CreateInstance creates a fresh instance of a loaded app with its initial
// state.
func (s *Service) CreateInstance(ctx context.Context, appID string) (*store.Instance, error) {
	doc, aerr := s.engine.NewInstanceState(appID)
	if aerr != nil {
		return nil, aerr
	}
	stateJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "marshal initial state").WithCause(err)
	}
	inst := &store.Instance{
		ID:    uuid.NewString(),
		AppID: appID,
		State: stateJSON,
	}
	if err := s.store.CreateInstance(ctx, inst); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "create instance of %q: %s", appID, err.Error()).WithCause(err)
	}
	return inst, nil
}

// Invoke runs one action against a persisted instance and commits the
// outcome. The returned ActionResult mirrors what Execute produced; a Go
// error is returned only for storage faults, never for action failures.
func (s *Service) Invoke(ctx context.Context, instanceID, agentID, agentRole, action string, params map[string]any) (*schema.ActionResult, error) {
	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	var stateDoc schema.StateDoc
	if len(inst.State) > 0 {
		if err := json.Unmarshal(inst.State, &stateDoc); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"corrupt state for instance %q: %s", instanceID, err.Error()).WithCause(err)
		}
	}

	invocationID := uuid.NewString()
	ctx = logging.WithInvocationID(ctx, invocationID)

	result := s.engine.Execute(ctx, InvokeRequest{
		AppID:     inst.AppID,
		AgentID:   agentID,
		AgentRole: agentRole,
		Action:    action,
		Params:    params,
		State:     &stateDoc,
	})

	inv := &store.Invocation{
		ID:         invocationID,
		InstanceID: instanceID,
		AppID:      inst.AppID,
		AgentID:    agentID,
		Action:     action,
		Success:    result.Success,
		CreatedAt:  time.Now().UTC(),
	}
	if len(params) > 0 {
		if b, err := json.Marshal(params); err == nil {
			inv.Params = b
		}
	}

	var newState []byte
	var notes []*store.Notification
	if result.Success {
		if result.Value != nil {
			if b, err := json.Marshal(result.Value); err == nil {
				inv.Value = b
			}
		}
		b, err := json.Marshal(result.NewState)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "marshal new state").WithCause(err)
		}
		newState = b
		for _, n := range result.Notifications {
			notes = append(notes, &store.Notification{
				InstanceID:   instanceID,
				InvocationID: invocationID,
				Target:       n.Target,
				Message:      n.Message,
			})
		}
	} else {
		inv.ErrorCode = result.Error.Code
		inv.ErrorMessage = result.Error.Message
	}

	if err := s.store.CommitInvocation(ctx, inv, newState, notes); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"commit invocation %q: %s", invocationID, err.Error()).WithCause(err)
	}

	logging.LogWith(ctx, s.logger).InfoContext(ctx, "invocation committed",
		slog.Bool("success", result.Success))
	return result, nil
}

// PendingNotifications returns undelivered notifications for an agent
// (including broadcasts).
func (s *Service) PendingNotifications(ctx context.Context, agentID string, limit int) ([]*store.Notification, error) {
	return s.store.PendingNotifications(ctx, agentID, limit)
}

// MarkNotificationsDelivered records host delivery of the given outbox
// entries.
func (s *Service) MarkNotificationsDelivered(ctx context.Context, ids []int64) error {
	return s.store.MarkNotificationsDelivered(ctx, ids)
}
