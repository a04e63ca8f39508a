package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/applogic/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Apps ---

func (s *LibSQLStore) SaveApp(ctx context.Context, app *App) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO apps (app_id, name, category, definition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(app_id) DO UPDATE SET
		   name=excluded.name, category=excluded.category,
		   definition=excluded.definition, updated_at=CURRENT_TIMESTAMP`,
		app.AppID, app.Name, nullStr(app.Category), string(app.Definition), timeOrNow(app.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetApp(ctx context.Context, appID string) (*App, error) {
	a := &App{}
	var category sql.NullString
	var definition string
	err := s.db.QueryRowContext(ctx,
		`SELECT app_id, name, category, definition, created_at, updated_at FROM apps WHERE app_id = ?`, appID,
	).Scan(&a.AppID, &a.Name, &category, &definition, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("app", appID)
	}
	if err != nil {
		return nil, err
	}
	a.Category = category.String
	a.Definition = json.RawMessage(definition)
	return a, nil
}

func (s *LibSQLStore) ListApps(ctx context.Context) ([]*App, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT app_id, name, category, definition, created_at, updated_at FROM apps ORDER BY app_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []*App
	for rows.Next() {
		a := &App{}
		var category sql.NullString
		var definition string
		if err := rows.Scan(&a.AppID, &a.Name, &category, &definition, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Category = category.String
		a.Definition = json.RawMessage(definition)
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

// --- Instances ---

func (s *LibSQLStore) CreateInstance(ctx context.Context, inst *Instance) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO instances (id, app_id, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		inst.ID, inst.AppID, string(inst.State), timeOrNow(inst.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetInstance(ctx context.Context, id string) (*Instance, error) {
	inst := &Instance{}
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, app_id, state, created_at, updated_at FROM instances WHERE id = ?`, id,
	).Scan(&inst.ID, &inst.AppID, &state, &inst.CreatedAt, &inst.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("instance", id)
	}
	if err != nil {
		return nil, err
	}
	inst.State = json.RawMessage(state)
	return inst, nil
}

func (s *LibSQLStore) ListInstances(ctx context.Context, appID string) ([]*Instance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, app_id, state, created_at, updated_at FROM instances WHERE app_id = ? ORDER BY created_at`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var insts []*Instance
	for rows.Next() {
		inst := &Instance{}
		var state string
		if err := rows.Scan(&inst.ID, &inst.AppID, &state, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, err
		}
		inst.State = json.RawMessage(state)
		insts = append(insts, inst)
	}
	return insts, rows.Err()
}

// --- Invocations ---

// CommitInvocation appends the invocation record and, in the same
// transaction, replaces the instance state (success only) and queues the
// notifications. A failed invocation persists only its log entry.
func (s *LibSQLStore) CommitInvocation(ctx context.Context, inv *Invocation, newState []byte, notifications []*Notification) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO invocations (id, instance_id, app_id, agent_id, action, params, success, value, error_code, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.InstanceID, inv.AppID, inv.AgentID, inv.Action,
		nullRaw(inv.Params), boolToInt(inv.Success), nullRaw(inv.Value),
		nullStr(inv.ErrorCode), nullStr(inv.ErrorMessage), timeOrNow(inv.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append invocation: %w", err)
	}

	if newState != nil {
		res, err := tx.ExecContext(ctx,
			`UPDATE instances SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			string(newState), inv.InstanceID,
		)
		if err != nil {
			return fmt.Errorf("update instance state: %w", err)
		}
		if err := checkRowsAffected(res, "instance", inv.InstanceID); err != nil {
			return err
		}
	}

	for _, n := range notifications {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO notifications (instance_id, invocation_id, target, message, created_at)
			 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
			inv.InstanceID, inv.ID, n.Target, n.Message,
		)
		if err != nil {
			return fmt.Errorf("queue notification: %w", err)
		}
	}

	return tx.Commit()
}

func (s *LibSQLStore) ListInvocations(ctx context.Context, instanceID string, limit int) ([]*Invocation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, instance_id, app_id, agent_id, action, params, success, value, error_code, error_message, created_at
		 FROM invocations WHERE instance_id = ? ORDER BY created_at DESC LIMIT ?`, instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invs []*Invocation
	for rows.Next() {
		inv := &Invocation{}
		var params, val, code, msg sql.NullString
		var success int
		if err := rows.Scan(&inv.ID, &inv.InstanceID, &inv.AppID, &inv.AgentID, &inv.Action,
			&params, &success, &val, &code, &msg, &inv.CreatedAt); err != nil {
			return nil, err
		}
		inv.Params = rawOrNil(params)
		inv.Success = success != 0
		inv.Value = rawOrNil(val)
		inv.ErrorCode = code.String
		inv.ErrorMessage = msg.String
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

// --- Notifications ---

// PendingNotifications returns undelivered notifications addressed to the
// given agent or broadcast. An empty target returns every pending entry.
func (s *LibSQLStore) PendingNotifications(ctx context.Context, target string, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, instance_id, invocation_id, target, message, delivered_at, created_at
	          FROM notifications WHERE delivered_at IS NULL`
	args := []any{}
	if target != "" {
		query += ` AND (target = ? OR target = ?)`
		args = append(args, target, schema.BroadcastTarget)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*Notification
	for rows.Next() {
		n := &Notification{}
		var delivered sql.NullTime
		if err := rows.Scan(&n.ID, &n.InstanceID, &n.InvocationID, &n.Target, &n.Message, &delivered, &n.CreatedAt); err != nil {
			return nil, err
		}
		if delivered.Valid {
			n.DeliveredAt = &delivered.Time
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (s *LibSQLStore) MarkNotificationsDelivered(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET delivered_at = CURRENT_TIMESTAMP WHERE id IN (`+placeholders+`)`, args...)
	return err
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.AppError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*LibSQLStore)(nil)
