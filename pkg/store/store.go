// Package store persists sessions, transmissions and measurements in a
// SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/r3d91ll/chime/pkg/errors"
	"github.com/r3d91ll/chime/pkg/session"
)

// Store is a SQLite-backed record of experiment sessions.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open creates or opens the database at path. ":memory:" opens a private
// in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.WrapIO(err, errors.ErrStoreFailed, "failed to create store directory").
				WithContext("path", path)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrStoreFailed, "failed to open database").
			WithContext("path", path)
	}
	// a single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, errors.WrapIO(err, errors.ErrStoreFailed, "failed to initialize schema").
			WithContext("path", path)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		config_json TEXT,
		metadata_json TEXT
	);

	CREATE TABLE IF NOT EXISTS transmissions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		message_id INTEGER NOT NULL,
		mode TEXT NOT NULL,
		text TEXT NOT NULL,
		decoded TEXT,
		chunks INTEGER NOT NULL,
		payload_type TEXT NOT NULL,
		success INTEGER NOT NULL,
		bit_errors INTEGER NOT NULL,
		frame_bits INTEGER NOT NULL,
		error TEXT,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);
	CREATE INDEX IF NOT EXISTS idx_transmissions_session ON transmissions(session_id);

	CREATE TABLE IF NOT EXISTS measurements (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		transmission_id TEXT,
		timestamp DATETIME NOT NULL,
		message_id INTEGER NOT NULL,
		sequence INTEGER NOT NULL,
		cycle INTEGER NOT NULL,
		mode TEXT NOT NULL,
		sender_resonance REAL NOT NULL,
		sender_entropy REAL NOT NULL,
		sender_coherence REAL NOT NULL,
		receiver_resonance REAL NOT NULL,
		receiver_entropy REAL NOT NULL,
		receiver_coherence REAL NOT NULL,
		coupling_resonance REAL NOT NULL,
		corrected INTEGER NOT NULL,
		status TEXT,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);
	CREATE INDEX IF NOT EXISTS idx_measurements_session ON measurements(session_id);
	CREATE INDEX IF NOT EXISTS idx_measurements_transmission ON measurements(transmission_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSession writes the session with all its transmissions and
// measurements in one transaction. Saving again replaces earlier rows.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := json.Marshal(sess.Config)
	if err != nil {
		return errors.WrapIO(err, errors.ErrStoreFailed, "failed to encode session config")
	}
	meta, err := json.Marshal(sess.Metadata)
	if err != nil {
		return errors.WrapIO(err, errors.ErrStoreFailed, "failed to encode session metadata")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapIO(err, errors.ErrStoreFailed, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	fail := func(err error, what string) error {
		return errors.WrapIO(err, errors.ErrStoreFailed, "failed to save "+what).
			WithContext("session_id", sess.ID)
	}

	var ended any
	if sess.EndedAt != nil {
		ended = *sess.EndedAt
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (id, name, description, started_at, ended_at, config_json, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, sess.Description, sess.StartedAt, ended, string(cfg), string(meta)); err != nil {
		return fail(err, "session")
	}

	for _, t := range sess.Transmissions {
		if _, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO transmissions
				(id, session_id, timestamp, message_id, mode, text, decoded, chunks, payload_type, success, bit_errors, frame_bits, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, sess.ID, t.Timestamp, t.MessageID, t.Mode, t.Text, t.Decoded, t.Chunks, t.PayloadType,
			boolInt(t.Success), t.BitErrors, t.FrameBits, t.Error); err != nil {
			return fail(err, "transmission")
		}
	}

	for _, m := range sess.Measurements {
		if _, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO measurements
				(id, session_id, transmission_id, timestamp, message_id, sequence, cycle, mode,
				 sender_resonance, sender_entropy, sender_coherence,
				 receiver_resonance, receiver_entropy, receiver_coherence,
				 coupling_resonance, corrected, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, sess.ID, m.TransmissionID, m.Timestamp, m.MessageID, m.Sequence, m.Cycle, m.Mode,
			m.SenderResonance, m.SenderEntropy, m.SenderCoherence,
			m.ReceiverResonance, m.ReceiverEntropy, m.ReceiverCoherence,
			m.CouplingResonance, boolInt(m.Corrected), string(m.Status)); err != nil {
			return fail(err, "measurement")
		}
	}

	if err = tx.Commit(); err != nil {
		return fail(err, "session")
	}
	return nil
}

// SessionSummary is one row of ListSessions.
type SessionSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	StartedAt     time.Time `json:"started_at"`
	Transmissions int       `json:"transmissions"`
	Successes     int       `json:"successes"`
}

// ListSessions returns every stored session, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.started_at,
		       COUNT(t.id), COALESCE(SUM(t.success), 0)
		FROM sessions s
		LEFT JOIN transmissions t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrStoreFailed, "failed to list sessions")
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.StartedAt, &sum.Transmissions, &sum.Successes); err != nil {
			return nil, errors.WrapIO(err, errors.ErrStoreFailed, "failed to read session row")
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapIO(err, errors.ErrStoreFailed, "failed to list sessions")
	}
	return out, nil
}

// LoadTransmissions returns the transmissions of a session in time order.
func (s *Store) LoadTransmissions(ctx context.Context, sessionID string) ([]*session.Transmission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, timestamp, message_id, mode, text, COALESCE(decoded, ''), chunks,
		       payload_type, success, bit_errors, frame_bits, COALESCE(error, '')
		FROM transmissions
		WHERE session_id = ?
		ORDER BY timestamp, rowid`, sessionID)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrStoreFailed, "failed to query transmissions").
			WithContext("session_id", sessionID)
	}
	defer rows.Close()

	var out []*session.Transmission
	for rows.Next() {
		t := &session.Transmission{}
		var success int
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Timestamp, &t.MessageID, &t.Mode, &t.Text, &t.Decoded,
			&t.Chunks, &t.PayloadType, &success, &t.BitErrors, &t.FrameBits, &t.Error); err != nil {
			return nil, errors.WrapIO(err, errors.ErrStoreFailed, "failed to read transmission row")
		}
		t.Success = success != 0
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapIO(err, errors.ErrStoreFailed, "failed to query transmissions")
	}
	return out, nil
}

// CountMeasurements returns the number of stored measurements for a
// session.
func (s *Store) CountMeasurements(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, errors.WrapIO(err, errors.ErrStoreFailed, "failed to count measurements").
			WithContext("session_id", sessionID)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
