package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Session is one recording of joint kinematics.
type Session struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Cameras       []string   `json:"cameras"`
	SubjectHeight float64    `json:"subject_height"`
	Samples       int        `json:"samples"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// Active reports whether the session is still recording.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}

// SessionRepository provides CRUD operations for sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

const sessionColumns = `id, name, cameras, subject_height, samples, started_at, ended_at`

// Create inserts a new session. A zero StartedAt is set to now.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	if sess.Cameras == nil {
		sess.Cameras = []string{}
	}
	cameras, err := json.Marshal(sess.Cameras)
	if err != nil {
		return fmt.Errorf("encode cameras: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO sessions (id, name, cameras, subject_height, samples, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, string(cameras), sess.SubjectHeight, sess.Samples, sess.StartedAt, nullTime(sess.EndedAt),
	)
	return err
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	row := r.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

// List retrieves all sessions, newest first.
func (r *SessionRepository) List() ([]*Session, error) {
	rows, err := r.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Current returns the most recent session that has not been finished.
func (r *SessionRepository) Current() (*Session, error) {
	row := r.db.QueryRow(`SELECT ` + sessionColumns + ` FROM sessions
		WHERE ended_at IS NULL ORDER BY started_at DESC LIMIT 1`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

// Finish marks a session as ended at the given time. Finishing an already
// finished session keeps its original end time.
func (r *SessionRepository) Finish(id string, at time.Time) error {
	res, err := r.db.Exec(`UPDATE sessions SET ended_at = COALESCE(ended_at, ?) WHERE id = ?`, at, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// Delete removes a session and all of its samples.
func (r *SessionRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	sess := &Session{}
	var cameras string
	var ended sql.NullTime
	if err := row.Scan(&sess.ID, &sess.Name, &cameras, &sess.SubjectHeight, &sess.Samples, &sess.StartedAt, &ended); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cameras), &sess.Cameras); err != nil {
		return nil, fmt.Errorf("decode cameras of session %s: %w", sess.ID, err)
	}
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	return sess, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
