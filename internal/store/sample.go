package store

import (
	"database/sql"
	"encoding/json"
)

// JointSample is one recorded kinematic sample of one joint. Data holds the
// sample's JSON form (time, angles, angular velocity and acceleration).
type JointSample struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Joint     string          `json:"joint"`
	Timestamp float64         `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// SampleRepository stores joint samples.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Append inserts samples for a session in a single transaction and bumps
// the session's sample count.
func (r *SampleRepository) Append(sessionID string, samples []JointSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE sessions SET samples = samples + ? WHERE id = ?`, len(samples), sessionID)
	if err != nil {
		return err
	}
	if err := expectRow(res); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO joint_samples (session_id, joint, ts, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.Exec(sessionID, s.Joint, s.Timestamp, string(s.Data)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListBySession returns a session's samples ordered by time. A non-empty
// joint restricts the result to that joint.
func (r *SampleRepository) ListBySession(sessionID, joint string) ([]JointSample, error) {
	query := `SELECT id, session_id, joint, ts, data FROM joint_samples WHERE session_id = ?`
	args := []any{sessionID}
	if joint != "" {
		query += ` AND joint = ?`
		args = append(args, joint)
	}
	query += ` ORDER BY ts, id`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := []JointSample{}
	for rows.Next() {
		var s JointSample
		var data string
		if err := rows.Scan(&s.ID, &s.SessionID, &s.Joint, &s.Timestamp, &data); err != nil {
			return nil, err
		}
		s.Data = json.RawMessage(data)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Export groups a session's samples by joint, each list ordered by time.
func (r *SampleRepository) Export(sessionID string) (map[string][]json.RawMessage, error) {
	samples, err := r.ListBySession(sessionID, "")
	if err != nil {
		return nil, err
	}
	out := make(map[string][]json.RawMessage)
	for _, s := range samples {
		out[s.Joint] = append(out[s.Joint], s.Data)
	}
	return out, nil
}
