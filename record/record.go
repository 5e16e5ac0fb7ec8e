// Package record stores simulation results in SQLite databases.
package record

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/runner"
)

// Recorder persists runs and, optionally, their individual accesses.
type Recorder interface {
	RecordRun(result *runner.Result)
	RecordAccess(runID string, a cache.Access)
	Flush() error
	Close() error
}

const defaultBatchSize = 100000

const schema = `
CREATE TABLE runs (
	run_id     TEXT PRIMARY KEY,
	location   TEXT,
	addr_size  INTEGER,
	block_size INTEGER,
	n_blocks   INTEGER,
	assoc      INTEGER,
	strategy   TEXT,
	accesses   INTEGER,
	hits       INTEGER,
	misses     INTEGER,
	evictions  INTEGER,
	status     TEXT,
	error      TEXT
);
CREATE TABLE line_entries (
	run_id    TEXT,
	line      INTEGER,
	set_index INTEGER,
	seq       INTEGER,
	tag       TEXT,
	entered   INTEGER,
	last_used INTEGER,
	count     INTEGER
);
CREATE TABLE accesses (
	run_id    TEXT,
	step      INTEGER,
	address   TEXT,
	tag       TEXT,
	set_index INTEGER,
	line      INTEGER,
	hit       INTEGER,
	evicted   INTEGER,
	victim    TEXT
);
`

type runRow struct {
	runID, location string
	desc            cache.Descriptor
	stats           cache.Statistics
	status, err     string
}

type entryRow struct {
	runID string
	line  int
	set   sql.NullInt64
	seq   int
	entry cache.Entry
}

type accessRow struct {
	runID  string
	access cache.Access
}

// SQLiteRecorder writes to a SQLite database. Rows are buffered and written
// in one transaction per flush. It also implements runner.Listener.
type SQLiteRecorder struct {
	*sql.DB

	mu        sync.Mutex
	path      string
	batchSize int
	pending   int
	closed    bool
	logger    *slog.Logger
	exitFlush atexit.HandlerID

	runs     []runRow
	entries  []entryRow
	accesses []accessRow
}

// Option configures a SQLiteRecorder.
type Option func(*SQLiteRecorder)

// WithBatchSize sets how many buffered rows trigger a flush.
func WithBatchSize(n int) Option {
	return func(r *SQLiteRecorder) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithLogger sets the logger used to report flush failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *SQLiteRecorder) {
		r.logger = logger
	}
}

// NewSQLiteRecorder creates a database at path, adding the .sqlite3
// extension if missing. An empty path generates a unique name. Existing
// files are never overwritten. Buffered rows are flushed when the process
// exits through atexit, until Close is called.
func NewSQLiteRecorder(path string, opts ...Option) (*SQLiteRecorder, error) {
	if path == "" {
		path = "cachesim_" + xid.New().String()
	}
	if !strings.HasSuffix(path, ".sqlite3") {
		path += ".sqlite3"
	}

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("file %s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	r := &SQLiteRecorder{
		DB:        db,
		path:      path,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.exitFlush = atexit.Register(func() { _ = r.Flush() })

	return r, nil
}

// Path returns the database file name.
func (r *SQLiteRecorder) Path() string {
	return r.path
}

// RecordRun buffers a successful run and the history of all its lines.
func (r *SQLiteRecorder) RecordRun(result *runner.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := runRow{
		runID:    result.RunID,
		location: result.Location,
		stats:    result.Stats,
		status:   runner.Succeeded.String(),
	}
	if result.Trace != nil {
		row.desc = result.Trace.Descriptor
	}
	r.runs = append(r.runs, row)
	r.pending++

	for i, line := range result.Lines {
		// Without a trace the geometry, and so the set, is unknown.
		var set sql.NullInt64
		if row.desc.Assoc > 0 {
			set = sql.NullInt64{Int64: int64(row.desc.SetOf(i)), Valid: true}
		}

		for seq, e := range line {
			r.entries = append(r.entries, entryRow{
				runID: result.RunID,
				line:  i,
				set:   set,
				seq:   seq,
				entry: e,
			})
			r.pending++
		}
	}

	r.flushIfFull()
}

// RecordAccess buffers a single access of a run.
func (r *SQLiteRecorder) RecordAccess(runID string, a cache.Access) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accesses = append(r.accesses, accessRow{runID: runID, access: a})
	r.pending++

	r.flushIfFull()
}

// RunStarted does nothing. Runs are written once they end.
func (r *SQLiteRecorder) RunStarted(string, string) {}

// RunSucceeded records the result.
func (r *SQLiteRecorder) RunSucceeded(result *runner.Result) {
	r.RecordRun(result)
}

// RunFailed records a run that produced no result.
func (r *SQLiteRecorder) RunFailed(runID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs = append(r.runs, runRow{
		runID:  runID,
		status: runner.Failed.String(),
		err:    err.Error(),
	})
	r.pending++

	r.flushIfFull()
}

func (r *SQLiteRecorder) flushIfFull() {
	if r.pending < r.batchSize {
		return
	}

	if err := r.flushLocked(); err != nil {
		r.logger.Error("failed to flush recorder", "path", r.path, "err", err)
	}
}

// Flush writes all buffered rows.
func (r *SQLiteRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.flushLocked()
}

func (r *SQLiteRecorder) flushLocked() error {
	if r.closed || r.pending == 0 {
		return nil
	}

	tx, err := r.Begin()
	if err != nil {
		return err
	}

	if err := r.writeAll(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	r.runs = nil
	r.entries = nil
	r.accesses = nil
	r.pending = 0

	return nil
}

func (r *SQLiteRecorder) writeAll(tx *sql.Tx) error {
	runStmt, err := tx.Prepare(
		"INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer func() { _ = runStmt.Close() }()

	for _, row := range r.runs {
		var strategy string
		if row.status == runner.Succeeded.String() {
			strategy = row.desc.Strategy.String()
		}

		_, err := runStmt.Exec(
			row.runID, row.location,
			row.desc.AddrSize, row.desc.BlockSize, row.desc.NumBlocks,
			row.desc.Assoc, strategy,
			row.stats.Accesses(), row.stats.Hits(), row.stats.Misses(),
			row.stats.Evictions(), row.status, row.err,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run %s: %w", row.runID, err)
		}
	}

	entryStmt, err := tx.Prepare(
		"INSERT INTO line_entries VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer func() { _ = entryStmt.Close() }()

	for _, row := range r.entries {
		_, err := entryStmt.Exec(
			row.runID, row.line, row.set, row.seq, hex(row.entry.Tag),
			row.entry.Entered, row.entry.LastUsed, row.entry.CountUsed,
		)
		if err != nil {
			return fmt.Errorf("failed to insert line entry: %w", err)
		}
	}

	accessStmt, err := tx.Prepare(
		"INSERT INTO accesses VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer func() { _ = accessStmt.Close() }()

	for _, row := range r.accesses {
		a := row.access

		var victim string
		if a.Evicted {
			victim = hex(a.Victim.Tag)
		}

		_, err := accessStmt.Exec(
			row.runID, a.Step, hex(a.Address), hex(a.Tag), a.Set, a.Line,
			a.Hit, a.Evicted, victim,
		)
		if err != nil {
			return fmt.Errorf("failed to insert access: %w", err)
		}
	}

	return nil
}

// Close flushes, releases the exit handler and closes the database. Later
// calls do nothing.
func (r *SQLiteRecorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}

	flushErr := r.flushLocked()
	r.closed = true
	r.mu.Unlock()

	// Exit handlers run under the atexit lock and take r.mu, so the
	// handler is released without holding r.mu.
	cancelErr := r.exitFlush.Cancel()

	return errors.Join(flushErr, cancelErr, r.DB.Close())
}

// Tags and addresses may use all 64 bits, which SQLite integers cannot hold.
func hex(v uint64) string {
	return fmt.Sprintf("%x", v)
}
