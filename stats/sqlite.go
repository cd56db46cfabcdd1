package stats

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite3" driver, the same driver
	// github.com/sarchlab/akita/v4/tracing.SQLiteTraceWriter uses.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/mithrilplus/memctl/signal"
)

// event is one buffered writeback or VRR row, following
// tracing.SQLiteTraceWriter's buffer-then-batch-insert pattern.
type event struct {
	id   string
	bank signal.FlatBankID
	row  signal.RowID
	col  int64
	kind string
}

// SQLiteRecorder persists the four named counters and a row per VRR/write-
// back event to a SQLite database, following
// github.com/sarchlab/akita/v4/tracing.SQLiteTraceWriter's
// create-table-then-prepared-statement-then-batch-flush shape.
type SQLiteRecorder struct {
	path string
	db   *sql.DB

	eventStmt *sql.Stmt

	counts         Counts
	bufferedEvents []event
	batchSize      int
}

// NewSQLiteRecorder creates a recorder that will write to the database
// file at path. Flush is registered with atexit so buffered events are
// never silently dropped at process exit.
func NewSQLiteRecorder(path string) *SQLiteRecorder {
	r := &SQLiteRecorder{
		path:      path,
		batchSize: 1000,
	}

	atexit.Register(func() { r.Flush() })

	return r
}

// Init opens the database connection and creates the schema.
func (r *SQLiteRecorder) Init() {
	db, err := sql.Open("sqlite3", r.path)
	if err != nil {
		panic(err)
	}

	r.db = db

	r.mustExec(`
		CREATE TABLE IF NOT EXISTS counters (
			name  VARCHAR(64) PRIMARY KEY,
			value INTEGER NOT NULL
		);
	`)

	r.mustExec(`
		CREATE TABLE IF NOT EXISTS events (
			event_id VARCHAR(32) NOT NULL,
			bank     INTEGER NOT NULL,
			row      INTEGER NOT NULL,
			col      INTEGER NOT NULL,
			kind     VARCHAR(32) NOT NULL
		);
	`)

	stmt, err := r.db.Prepare(`INSERT INTO events VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		panic(err)
	}

	r.eventStmt = stmt
}

func (r *SQLiteRecorder) mustExec(query string) {
	if _, err := r.db.Exec(query); err != nil {
		panic(fmt.Errorf("stats: executing %q: %w", query, err))
	}
}

// RecordWriteback implements Recorder.
func (r *SQLiteRecorder) RecordWriteback(bank signal.FlatBankID, row signal.RowID, col int64) {
	r.counts.TotalWritebackRequests++
	r.buffer(bank, row, col, "write")
}

// RecordVRR implements Recorder.
func (r *SQLiteRecorder) RecordVRR(bank signal.FlatBankID, row signal.RowID) {
	r.buffer(bank, row, -1, "victim-row-refresh")
}

// RecordMiss implements Recorder.
func (r *SQLiteRecorder) RecordMiss(kind MissKind) {
	switch kind {
	case MissRead:
		r.counts.MissReads++
	case MissWrite:
		r.counts.MissWrites++
	case MissMix:
		r.counts.MissMixes++
	}
}

func (r *SQLiteRecorder) buffer(bank signal.FlatBankID, row signal.RowID, col int64, kind string) {
	r.bufferedEvents = append(r.bufferedEvents, event{
		id:   xid.New().String(),
		bank: bank,
		row:  row,
		col:  col,
		kind: kind,
	})

	if len(r.bufferedEvents) >= r.batchSize {
		r.Flush()
	}
}

// Flush writes the buffered events and the current counter values to the
// database.
func (r *SQLiteRecorder) Flush() {
	if r.db == nil {
		return
	}

	if len(r.bufferedEvents) > 0 {
		r.mustExec("BEGIN TRANSACTION")

		for _, e := range r.bufferedEvents {
			if _, err := r.eventStmt.Exec(e.id, e.bank, e.row, e.col, e.kind); err != nil {
				panic(err)
			}
		}

		r.bufferedEvents = nil
		r.mustExec("COMMIT TRANSACTION")
	}

	r.writeCounters()
}

func (r *SQLiteRecorder) writeCounters() {
	named := map[string]int{
		"total_num_writeback_requests": r.counts.TotalWritebackRequests,
		MissRead.Name():                r.counts.MissReads,
		MissWrite.Name():               r.counts.MissWrites,
		MissMix.Name():                 r.counts.MissMixes,
	}

	for name, value := range named {
		_, err := r.db.Exec(
			`INSERT INTO counters (name, value) VALUES (?, ?)
			 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
			name, value,
		)
		if err != nil {
			panic(err)
		}
	}
}
