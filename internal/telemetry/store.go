// Package telemetry records every control tick to SQLite and analyses
// recorded sessions.
package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/depth-servo/internal/servo"
)

// Store is the telemetry database.
type Store struct {
	db   *sql.DB
	path string
}

// Session describes one run of the controller.
type Session struct {
	ID      string    `json:"session_id"`
	Started time.Time `json:"started"`
	Notes   string    `json:"notes"`
	Config  string    `json:"config_json"`
	Ticks   int       `json:"ticks"`
}

// Open opens (creating if needed) the database at path and applies
// migrations.
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?" + url.Values{
		"_pragma": {"journal_mode(WAL)", "busy_timeout(5000)", "synchronous(NORMAL)", "foreign_keys(ON)"},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry db: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// StartSession creates a new session and returns its ID.
func (s *Store) StartSession(ctx context.Context, started time.Time, notes, configJSON string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, started_ns, notes, config_json) VALUES (?, ?, ?, ?)`,
		id, started.UnixNano(), notes, configJSON)
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// InsertTicks writes statuses for session in one transaction.
func (s *Store) InsertTicks(ctx context.Context, session string, statuses []servo.Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tick batch: %w", err)
	}
	defer tx.Rollback()

	tickStmt, err := tx.PrepareContext(ctx, `INSERT INTO ticks (
		session_id, tick, ts_ns, have_target, target_x, target_y, target_z,
		cmd_thrust, cmd_roll, cmd_pitch, disarmed, send_error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer tickStmt.Close()
	axisStmt, err := tx.PrepareContext(ctx, `INSERT INTO axis_samples (
		session_id, tick, axis, pv, error, integral, derivative, output
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer axisStmt.Close()

	for _, st := range statuses {
		if _, err := tickStmt.ExecContext(ctx, session, st.Tick, st.Time.UnixNano(), st.HaveTarget,
			st.Target.X, st.Target.Y, st.Target.Z,
			st.Command.Thrust, st.Command.Roll, st.Command.Pitch, st.Disarmed, st.SendError); err != nil {
			return fmt.Errorf("failed to insert tick %d: %w", st.Tick, err)
		}
		for _, a := range st.Axes {
			if _, err := axisStmt.ExecContext(ctx, session, st.Tick, a.Name,
				a.ProcessValue, a.Error, a.Integral, a.Derivative, a.Output); err != nil {
				return fmt.Errorf("failed to insert %s sample for tick %d: %w", a.Name, st.Tick, err)
			}
		}
	}
	return tx.Commit()
}

// Sessions lists recorded sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.session_id, s.started_ns, s.notes, s.config_json,
		       (SELECT COUNT(*) FROM ticks t WHERE t.session_id = s.session_id)
		FROM sessions s ORDER BY s.started_ns DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var startedNs int64
		if err := rows.Scan(&sess.ID, &startedNs, &sess.Notes, &sess.Config, &sess.Ticks); err != nil {
			return nil, err
		}
		sess.Started = time.Unix(0, startedNs)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// LatestSession returns the most recently started session ID.
func (s *Store) LatestSession(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT session_id FROM sessions ORDER BY started_ns DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no sessions recorded in %s", s.path)
	}
	return id, err
}

// AxisSeries is the recorded history of one axis.
type AxisSeries struct {
	Name   string
	Ticks  []float64
	Error  []float64
	Output []float64
}

// AxisSeries loads the samples of every axis of session, ordered by tick.
func (s *Store) AxisSeries(ctx context.Context, session string) (map[string]*AxisSeries, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT axis, tick, error, output FROM axis_samples WHERE session_id = ? ORDER BY axis, tick`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	series := make(map[string]*AxisSeries)
	for rows.Next() {
		var name string
		var tick int64
		var e, out float64
		if err := rows.Scan(&name, &tick, &e, &out); err != nil {
			return nil, err
		}
		a, ok := series[name]
		if !ok {
			a = &AxisSeries{Name: name}
			series[name] = a
		}
		a.Ticks = append(a.Ticks, float64(tick))
		a.Error = append(a.Error, e)
		a.Output = append(a.Output, out)
	}
	return series, rows.Err()
}
