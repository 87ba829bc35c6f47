package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			context TEXT,
			message_count INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			turn_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS tool_calls (
			log_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			input_params TEXT,
			output_result TEXT,
			status TEXT NOT NULL,
			failure_kind TEXT,
			error TEXT,
			execution_time_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_calls_status ON tool_calls(tool_name, status)`,
		`CREATE TABLE IF NOT EXISTS travel_plans (
			plan_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			city TEXT NOT NULL,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			day_count INTEGER NOT NULL,
			budget_total INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'todo',
			is_favorite INTEGER NOT NULL DEFAULT 0,
			is_completed INTEGER NOT NULL DEFAULT 0,
			document TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_travel_plans_session ON travel_plans(session_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Columns added after the first schema (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("tool_calls", "failure_kind", "ALTER TABLE tool_calls ADD COLUMN failure_kind TEXT"); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	sc, err := json.Marshal(session.Context)
	if err != nil {
		return fmt.Errorf("marshal session context: %w", err)
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, title, context, message_count, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.UserID, session.Title, string(sc), session.MessageCount, session.IsActive, session.CreatedAt, session.UpdatedAt)
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var sc sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, title, context, message_count, is_active, created_at, updated_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.UserID, &session.Title, &sc, &session.MessageCount, &session.IsActive, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sc.Valid && sc.String != "" {
		if err := json.Unmarshal([]byte(sc.String), &session.Context); err != nil {
			return nil, fmt.Errorf("unmarshal session context: %w", err)
		}
	}
	return &session, nil
}

// GetOrCreateSession gets an existing session or creates a new one.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	now := time.Now()
	session = &domain.Session{
		SessionID: sessionID,
		UserID:    userID,
		Context:   domain.SessionContext{State: domain.StateAwaitingInput},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateSessionContext replaces the context bag of a session.
func (s *SQLiteStore) UpdateSessionContext(ctx context.Context, sessionID string, sc domain.SessionContext) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal session context: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET context = ?, updated_at = ? WHERE session_id = ?`,
		string(data), time.Now(), sessionID)
	if err != nil {
		return err
	}
	return requireRow(res, "session", sessionID)
}

// AppendTurn inserts a turn and bumps the session's counters in one transaction.
// title is applied only while the session has none.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *domain.Turn, title string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (turn_id, session_id, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		turn.TurnID, turn.SessionID, turn.Role, turn.Content, nullStringBytes(turn.Metadata), turn.CreatedAt); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions
		 SET message_count = message_count + 1,
		     updated_at = ?,
		     title = CASE WHEN title = '' THEN ? ELSE title END
		 WHERE session_id = ?`,
		turn.CreatedAt, title, turn.SessionID)
	if err != nil {
		return err
	}
	if err := requireRow(res, "session", turn.SessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetTurns retrieves turns for a session in insertion order.
// When before is set, only turns written before that turn are returned.
// A positive limit keeps the newest turns of that range.
func (s *SQLiteStore) GetTurns(ctx context.Context, sessionID string, limit int, before string) ([]domain.Turn, error) {
	query := `SELECT turn_id, session_id, role, content, metadata, created_at FROM turns WHERE session_id = ?`
	args := []interface{}{sessionID}

	if before != "" {
		query += ` AND rowid < (SELECT rowid FROM turns WHERE turn_id = ?)`
		args = append(args, before)
	}

	query += ` ORDER BY rowid DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var turn domain.Turn
		var metadata sql.NullString
		if err := rows.Scan(&turn.TurnID, &turn.SessionID, &turn.Role, &turn.Content, &metadata, &turn.CreatedAt); err != nil {
			return nil, err
		}
		if metadata.Valid {
			turn.Metadata = json.RawMessage(metadata.String)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(turns)
	return turns, nil
}

// CreateToolCall inserts a tool-call record. Records are never updated.
func (s *SQLiteStore) CreateToolCall(ctx context.Context, record *domain.ToolCallRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (log_id, session_id, tool_name, input_params, output_result, status, failure_kind, error, execution_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.LogID, record.SessionID, record.ToolName,
		nullStringBytes(record.InputParams), nullStringBytes(record.OutputResult),
		record.Status, nullString(string(record.FailureKind)), nullString(record.Error),
		record.ExecutionTimeMs, record.CreatedAt)
	return err
}

// GetToolCalls lists the tool-call records of a session in insertion order.
func (s *SQLiteStore) GetToolCalls(ctx context.Context, sessionID string) ([]domain.ToolCallRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT log_id, session_id, tool_name, input_params, output_result, status, failure_kind, error, execution_time_ms, created_at
		 FROM tool_calls WHERE session_id = ? ORDER BY rowid ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ToolCallRecord
	for rows.Next() {
		var rec domain.ToolCallRecord
		var input, output, failureKind, errText sql.NullString
		if err := rows.Scan(&rec.LogID, &rec.SessionID, &rec.ToolName, &input, &output, &rec.Status, &failureKind, &errText, &rec.ExecutionTimeMs, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if input.Valid {
			rec.InputParams = json.RawMessage(input.String)
		}
		if output.Valid {
			rec.OutputResult = json.RawMessage(output.String)
		}
		rec.FailureKind = domain.OutcomeStatus(failureKind.String)
		rec.Error = errText.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CreatePlan writes a travel plan atomically.
func (s *SQLiteStore) CreatePlan(ctx context.Context, plan *domain.TravelPlan) error {
	doc, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal travel plan: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO travel_plans (plan_id, session_id, city, start_date, end_date, day_count, budget_total, status, is_favorite, is_completed, document, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.PlanID, plan.SessionID, plan.City, plan.StartDate.String(), plan.EndDate.String(),
		plan.DayCount, plan.Budget.Total, plan.Status, plan.IsFavorite, plan.IsCompleted,
		string(doc), plan.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%w: %s", ErrDuplicatePlan, plan.PlanID)
		}
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE session_id = ?`,
		plan.CreatedAt, plan.SessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetPlan retrieves a travel plan by ID.
func (s *SQLiteStore) GetPlan(ctx context.Context, planID string) (*domain.TravelPlan, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM travel_plans WHERE plan_id = ?`, planID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodePlan(doc)
}

// ListPlans lists the plans produced by a session, oldest first.
func (s *SQLiteStore) ListPlans(ctx context.Context, sessionID string) ([]domain.TravelPlan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document FROM travel_plans WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.TravelPlan
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		plan, err := decodePlan(doc)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	return plans, rows.Err()
}

func decodePlan(doc string) (*domain.TravelPlan, error) {
	var plan domain.TravelPlan
	if err := json.Unmarshal([]byte(doc), &plan); err != nil {
		return nil, fmt.Errorf("unmarshal travel plan: %w", err)
	}
	return &plan, nil
}

func requireRow(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", what, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
