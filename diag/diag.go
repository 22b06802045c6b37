// Package diag is an optional, opt-in observer over a running schedule:
// snapshot its current assignment plan and per-subtask timings, encode
// it the way the teacher's syncharvester encodes its API responses, and
// persist a run of snapshots into a local sqlite3 database for
// after-the-fact inspection. Nothing in schedule or task imports this
// package — a deployment that never calls diag.NewRecorder pays nothing
// for it.
package diag

import (
	"database/sql"
	"fmt"

	json "github.com/sugawarayuuta/sonnet"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/sha3"

	"sts/schedule"
	"sts/task"
)

// SubTaskSnapshot is one subtask's assignment and timing as of the
// moment Snapshot was taken.
type SubTaskSnapshot struct {
	ThreadID     int     `json:"thread_id"`
	TaskLabel    string  `json:"task_label"`
	RangeStart   string  `json:"range_start"`
	RangeEnd     string  `json:"range_end"`
	Done         bool    `json:"done"`
	WaitSeconds  float64 `json:"wait_seconds"`
	RunSeconds   float64 `json:"run_seconds"`
	TotalSeconds float64 `json:"total_seconds"`
}

// ScheduleSnapshot is the full per-step picture diag persists: every
// subtask across every task of a schedule, plus a content fingerprint
// of the assignment plan (task label, thread id, and range triples)
// that stays stable across steps as long as the plan itself doesn't
// change (step timing obviously does).
type ScheduleSnapshot struct {
	ScheduleName string            `json:"schedule_name"`
	Step         int64             `json:"step"`
	PlanHash     string            `json:"plan_hash"`
	SubTasks     []SubTaskSnapshot `json:"subtasks"`
}

// Snapshot walks every task s currently has assigned and captures each
// of their subtasks' state. step is the caller's own step counter
// (Process has no public accessor for it, so callers thread it through
// explicitly — matching how RecordTime labels are caller-supplied).
func Snapshot(s *schedule.Schedule, step int64) ScheduleSnapshot {
	var subs []SubTaskSnapshot
	for _, tk := range tasksOf(s) {
		for _, st := range tk.SubTasks() {
			r := st.Range()
			times := st.Times()
			subs = append(subs, SubTaskSnapshot{
				ThreadID:     st.ThreadID,
				TaskLabel:    tk.Label(),
				RangeStart:   r.Start.String(),
				RangeEnd:     r.End.String(),
				Done:         st.IsDone(),
				WaitSeconds:  times.WaitDuration().Seconds(),
				RunSeconds:   times.RunDuration().Seconds(),
				TotalSeconds: times.TotalDuration().Seconds(),
			})
		}
	}
	snap := ScheduleSnapshot{ScheduleName: s.Name(), Step: step, SubTasks: subs}
	snap.PlanHash = fingerprint(snap.SubTasks)
	return snap
}

func tasksOf(s *schedule.Schedule) []*task.Task {
	return s.Tasks()
}

// fingerprint hashes the ordered (task label, thread id, range) triples
// of a snapshot's subtasks with SHA3-256, giving a stable short id for
// a particular assignment plan independent of timing — used as the
// sqlite3 primary key and for correlating log lines across runs of the
// same plan.
func fingerprint(subs []SubTaskSnapshot) string {
	h := sha3.New256()
	for _, s := range subs {
		fmt.Fprintf(h, "%s|%d|%s|%s;", s.TaskLabel, s.ThreadID, s.RangeStart, s.RangeEnd)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Recorder persists a stream of ScheduleSnapshots into a local sqlite3
// database, one row per step, encoded with the same json package the
// teacher's syncharvester uses for its own API payloads.
type Recorder struct {
	db *sql.DB
}

// NewRecorder opens (creating if necessary) a sqlite3 database at path
// and ensures its schema exists.
func NewRecorder(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	const schema = `
CREATE TABLE IF NOT EXISTS schedule_snapshots (
	plan_hash     TEXT NOT NULL,
	schedule_name TEXT NOT NULL,
	step          INTEGER NOT NULL,
	payload       TEXT NOT NULL,
	PRIMARY KEY (plan_hash, step)
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Recorder{db: db}, nil
}

// Record encodes snap and inserts it, replacing any prior row for the
// same (plan_hash, step) pair.
func (r *Recorder) Record(snap ScheduleSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(
		`INSERT OR REPLACE INTO schedule_snapshots (plan_hash, schedule_name, step, payload) VALUES (?, ?, ?, ?)`,
		snap.PlanHash, snap.ScheduleName, snap.Step, string(payload),
	)
	return err
}

// Snapshots returns every snapshot recorded for a given schedule name,
// ordered by step, decoded back from their stored JSON payload.
func (r *Recorder) Snapshots(scheduleName string) ([]ScheduleSnapshot, error) {
	rows, err := r.db.Query(
		`SELECT payload FROM schedule_snapshots WHERE schedule_name = ? ORDER BY step ASC`,
		scheduleName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduleSnapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var snap ScheduleSnapshot
		if err := json.Unmarshal([]byte(payload), &snap); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (r *Recorder) Close() error { return r.db.Close() }
