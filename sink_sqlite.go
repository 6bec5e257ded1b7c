package labdaq

// The SQLite sink archives every acquired row in a persistent table, so runs
// accumulate in one database file across sessions.

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

const createAcquisitionTable = `CREATE TABLE IF NOT EXISTS acquisition_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT,
	time REAL,
	ao_voltage REAL,
	ai_voltage REAL
)`

const insertAcquisitionRow = `INSERT INTO acquisition_data
	(timestamp, time, ao_voltage, ai_voltage) VALUES (?, ?, ?, ?)`

// sqliteTimeFormat is how row timestamps are rendered into the TEXT column.
const sqliteTimeFormat = "2006-01-02 15:04:05.000"

// SQLiteSink appends each sample row to the acquisition_data table of a
// SQLite database, creating the table if absent. Row identifiers are
// auto-generated by the database.
type SQLiteSink struct {
	path string
	db   *sql.DB
	stmt *sql.Stmt
}

// NewSQLiteSink returns a sink writing to the database file at path. The file
// is created on first use.
func NewSQLiteSink(path string) *SQLiteSink {
	return &SQLiteSink{path: path}
}

// Name implements Sink.
func (s *SQLiteSink) Name() string { return "sqlite" }

// Start opens the database, creates the table if needed, and prepares the
// insert statement.
func (s *SQLiteSink) Start(run *RunInfo) error {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return &SinkError{Sink: s.Name(), Op: "start", Err: err}
	}
	if _, err := db.Exec(createAcquisitionTable); err != nil {
		db.Close()
		return &SinkError{Sink: s.Name(), Op: "start", Err: err}
	}
	stmt, err := db.Prepare(insertAcquisitionRow)
	if err != nil {
		db.Close()
		return &SinkError{Sink: s.Name(), Op: "start", Err: err}
	}
	s.db = db
	s.stmt = stmt
	return nil
}

// Append inserts one row.
func (s *SQLiteSink) Append(row Row) error {
	if s.db == nil {
		return sinkErrorf(s.Name(), "append", "sink is not started")
	}
	_, err := s.stmt.Exec(row.Timestamp.Format(sqliteTimeFormat), row.Elapsed, row.AO, row.AI)
	if err != nil {
		return &SinkError{Sink: s.Name(), Op: "append", Err: err}
	}
	return nil
}

// Close releases the statement and the database handle.
func (s *SQLiteSink) Close(run *RunInfo) error {
	if s.db == nil {
		return nil
	}
	serr := s.stmt.Close()
	derr := s.db.Close()
	s.db = nil
	s.stmt = nil
	if serr != nil {
		return &SinkError{Sink: s.Name(), Op: "close", Err: serr}
	}
	if derr != nil {
		return &SinkError{Sink: s.Name(), Op: "close", Err: derr}
	}
	return nil
}
