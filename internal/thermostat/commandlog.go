package thermostat

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
)

// Command log statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// CommandEntry is one row of the command log.
type CommandEntry struct {
	ID         string            `json:"id"`
	RequestID  string            `json:"request_id,omitempty"`
	Command    string            `json:"command"`
	Source     string            `json:"source"`
	Targets    []string          `json:"targets"`
	Parameters map[string]any    `json:"parameters,omitempty"`
	Results    map[string]string `json:"results,omitempty"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	DurationMS int64             `json:"duration_ms"`
	CreatedAt  time.Time         `json:"created_at"`
}

// CommandFilter controls which entries List returns.
type CommandFilter struct {
	Command string // optional
	Source  string // optional
	Status  string // optional
	Limit   int    // default 50, max 200
	Offset  int
}

// CommandListResult is one page of entries.
type CommandListResult struct {
	Entries []CommandEntry `json:"entries"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// CommandLog stores executed commands in SQLite. Implements
// eqiva.CommandLogger.
type CommandLog struct {
	db *sql.DB
}

// NewCommandLog creates a command log over db.
func NewCommandLog(db *sql.DB) *CommandLog {
	return &CommandLog{db: db}
}

// LogCommand converts a controller record and stores it.
func (l *CommandLog) LogCommand(ctx context.Context, rec eqiva.CommandRecord) error {
	entry := &CommandEntry{
		RequestID:  rec.ID,
		Command:    rec.Command,
		Source:     rec.Source,
		Targets:    rec.Targets,
		Parameters: rec.Parameters,
		DurationMS: rec.Duration.Milliseconds(),
		CreatedAt:  rec.StartedAt,
		Status:     StatusOK,
	}
	if len(rec.Results) > 0 {
		entry.Results = make(map[string]string, len(rec.Results))
		for _, addr := range rec.Results.Addresses() {
			if err := rec.Results[addr]; err != nil {
				entry.Results[addr] = eqiva.ErrorCode(err)
				continue
			}
			entry.Results[addr] = StatusOK
		}
	}
	if rec.Err != nil {
		entry.Error = rec.Err.Error()
		entry.Status = StatusFailed
		if failed := rec.Results.Failed(); len(failed) > 0 && len(failed) < len(rec.Results) {
			entry.Status = StatusPartial
		}
	}
	return l.Create(ctx, entry)
}

// Create inserts an entry. The ID and CreatedAt are generated if empty.
func (l *CommandLog) Create(ctx context.Context, e *CommandEntry) error {
	if e.ID == "" {
		e.ID = "cmd-" + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Targets == nil {
		e.Targets = []string{}
	}

	targets, err := json.Marshal(e.Targets)
	if err != nil {
		return fmt.Errorf("marshalling targets: %w", err)
	}
	params, err := marshalOptional(e.Parameters, len(e.Parameters) > 0)
	if err != nil {
		return fmt.Errorf("marshalling parameters: %w", err)
	}
	results, err := marshalOptional(e.Results, len(e.Results) > 0)
	if err != nil {
		return fmt.Errorf("marshalling results: %w", err)
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO command_log (id, request_id, command, source, targets, parameters, results, status, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, nullableString(e.RequestID), e.Command, e.Source, string(targets),
		params, results, e.Status, nullableString(e.Error), e.DurationMS,
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}
	return nil
}

func marshalOptional(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// List returns entries matching the filter, most recent first.
func (l *CommandLog) List(ctx context.Context, filter CommandFilter) (*CommandListResult, error) { //nolint:gocognit // dynamic query builder
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for command log queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Command != "" {
		conditions = append(conditions, "command = ?")
		args = append(args, filter.Command)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM command_log %s", where) //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := l.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command log: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions
		`SELECT id, request_id, command, source, targets, parameters, results, status, error, duration_ms, created_at
		 FROM command_log %s ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	entries := []CommandEntry{}
	for rows.Next() {
		var e CommandEntry
		var requestID, params, results, errText sql.NullString
		var targets, createdAt string
		if err := rows.Scan(&e.ID, &requestID, &e.Command, &e.Source, &targets,
			&params, &results, &e.Status, &errText, &e.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command log: %w", err)
		}
		e.RequestID = requestID.String
		e.Error = errText.String
		if err := json.Unmarshal([]byte(targets), &e.Targets); err != nil {
			return nil, fmt.Errorf("unmarshalling targets: %w", err)
		}
		if params.Valid {
			_ = json.Unmarshal([]byte(params.String), &e.Parameters) //nolint:errcheck // best effort for display
		}
		if results.Valid {
			_ = json.Unmarshal([]byte(results.String), &e.Results) //nolint:errcheck // best effort for display
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing command log timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}

	return &CommandListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
