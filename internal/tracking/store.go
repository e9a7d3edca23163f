// Package tracking records battery invocations and their metrics in a sqlite
// database and serves them over a read-only HTTP API.
package tracking

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"
)

var (
	ErrRunNotFound        = errors.New("run not found")
	ErrExperimentNotFound = errors.New("experiment not found")
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Run struct {
	ID         string             `json:"id"`
	Experiment string             `json:"experiment"`
	Subcommand string             `json:"subcommand"`
	Args       []string           `json:"args"`
	Status     Status             `json:"status"`
	ExitCode   int                `json:"exit_code"`
	Failure    string             `json:"failure,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// Experiment counts the runs of an experiment by status.
type Experiment struct {
	Name      string `json:"name"`
	Runs      int    `json:"runs"`
	Running   int    `json:"running"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// timeFormat sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
  id          TEXT PRIMARY KEY,
  experiment  TEXT NOT NULL,
  subcommand  TEXT NOT NULL,
  args        TEXT NOT NULL,
  status      TEXT NOT NULL,
  exit_code   INTEGER NOT NULL DEFAULT 0,
  failure     TEXT NOT NULL DEFAULT '',
  started_at  TEXT NOT NULL,
  finished_at TEXT
);
CREATE INDEX IF NOT EXISTS runs_experiment ON runs (experiment, started_at);
CREATE TABLE IF NOT EXISTS metrics (
  run_id TEXT NOT NULL REFERENCES runs (id),
  key    TEXT NOT NULL,
  value  REAL NOT NULL,
  PRIMARY KEY (run_id, key)
);`

// Open opens or creates the database at path. ":memory:" keeps it in memory.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	// a single connection keeps in-memory databases shared and serializes
	// writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()

		return nil, errors.Wrap(err, "init schema")
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StartInvocation records a running invocation and returns its run id.
func (s *Store) StartInvocation(ctx context.Context, experiment, subcommand string, args []string) (string, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", errors.Wrap(err, "encode args")
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, experiment, subcommand, args, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, experiment, subcommand, string(encoded), StatusRunning, s.now().UTC().Format(timeFormat),
	)
	if err != nil {
		return "", errors.Wrap(err, "insert run")
	}

	return id, nil
}

// FinishInvocation closes a run. It succeeded when the exit code is 0 and
// there is no failure.
func (s *Store) FinishInvocation(ctx context.Context, id string, exitCode int, failure string) error {
	status := StatusSucceeded
	if exitCode != 0 || failure != "" {
		status = StatusFailed
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, exit_code = ?, failure = ?, finished_at = ? WHERE id = ?`,
		status, exitCode, failure, s.now().UTC().Format(timeFormat), id,
	)
	if err != nil {
		return errors.Wrapf(err, "update run %s", id)
	}

	return expectOne(res, id)
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Wrap(ErrRunNotFound, id)
	}

	return nil
}

// LogMetrics stores metrics of a run, replacing previous values of the same
// keys.
func (s *Store) LogMetrics(ctx context.Context, id string, metrics map[string]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, id).Scan(&exists); err != nil {
		return errors.Wrapf(err, "find run %s", id)
	}
	if exists == 0 {
		return errors.Wrap(ErrRunNotFound, id)
	}

	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO metrics (run_id, key, value) VALUES (?, ?, ?)
			 ON CONFLICT (run_id, key) DO UPDATE SET value = excluded.value`,
			id, k, metrics[k],
		)
		if err != nil {
			return errors.Wrapf(err, "insert metric %s", k)
		}
	}

	return errors.Wrap(tx.Commit(), "commit")
}

const selectRuns = `SELECT id, experiment, subcommand, args, status, exit_code, failure, started_at, finished_at FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r             Run
		args, started string
		finished      sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Experiment, &r.Subcommand, &args, &r.Status, &r.ExitCode, &r.Failure, &started, &finished); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(args), &r.Args); err != nil {
		return Run{}, errors.Wrapf(err, "decode args of run %s", r.ID)
	}

	var err error
	if r.StartedAt, err = time.Parse(timeFormat, started); err != nil {
		return Run{}, errors.Wrapf(err, "started_at of run %s", r.ID)
	}
	if finished.Valid {
		t, err := time.Parse(timeFormat, finished.String)
		if err != nil {
			return Run{}, errors.Wrapf(err, "finished_at of run %s", r.ID)
		}
		r.FinishedAt = &t
	}

	return r, nil
}

func (s *Store) metrics(ctx context.Context, id string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metrics WHERE run_id = ?`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "query metrics of %s", id)
	}
	defer rows.Close()

	var res map[string]float64
	for rows.Next() {
		var (
			k string
			v float64
		)
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.Wrap(err, "scan metric")
		}
		if res == nil {
			res = make(map[string]float64)
		}
		res[k] = v
	}

	return res, errors.Wrap(rows.Err(), "iterate metrics")
}

// Run returns a run with its metrics.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, errors.Wrap(ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, errors.Wrapf(err, "query run %s", id)
	}
	if r.Metrics, err = s.metrics(ctx, id); err != nil {
		return Run{}, err
	}

	return r, nil
}

// Runs returns the runs of an experiment in start order.
func (s *Store) Runs(ctx context.Context, experiment string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, selectRuns+` WHERE experiment = ? ORDER BY started_at, rowid`, experiment)
	if err != nil {
		return nil, errors.Wrapf(err, "query runs of %s", experiment)
	}

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			rows.Close()

			return nil, errors.Wrap(err, "scan run")
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()

		return nil, errors.Wrap(err, "iterate runs")
	}
	// metrics are read once the cursor is released
	rows.Close()

	for i := range runs {
		if runs[i].Metrics, err = s.metrics(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}

	return runs, nil
}

// Experiments lists every experiment by name.
func (s *Store) Experiments(ctx context.Context) ([]Experiment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT experiment,
       COUNT(*),
       SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
       SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
       SUM(CASE WHEN status = ? THEN 1 ELSE 0 END)
FROM runs GROUP BY experiment ORDER BY experiment`, StatusRunning, StatusSucceeded, StatusFailed)
	if err != nil {
		return nil, errors.Wrap(err, "query experiments")
	}
	defer rows.Close()

	var exps []Experiment
	for rows.Next() {
		var e Experiment
		if err := rows.Scan(&e.Name, &e.Runs, &e.Running, &e.Succeeded, &e.Failed); err != nil {
			return nil, errors.Wrap(err, "scan experiment")
		}
		exps = append(exps, e)
	}

	return exps, errors.Wrap(rows.Err(), "iterate experiments")
}

// Summary averages each metric over the succeeded runs of an experiment.
func (s *Store) Summary(ctx context.Context, experiment string) (map[string]float64, error) {
	runs, err := s.Runs(ctx, experiment)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.Wrap(ErrExperimentNotFound, experiment)
	}

	values := make(map[string][]float64)
	for _, r := range runs {
		if r.Status != StatusSucceeded {
			continue
		}
		for k, v := range r.Metrics {
			values[k] = append(values[k], v)
		}
	}

	summary := make(map[string]float64, len(values))
	for k, vs := range values {
		summary[k] = stat.Mean(vs, nil)
	}

	return summary, nil
}
