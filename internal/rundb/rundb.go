// Package rundb records acquisition run metadata in a ClickHouse database.
package rundb

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const databaseName = "labdaq" // official SQL name of the database

const dbTimeFormat = "2006-01-02 15:04:05.000000"

// Connection wraps one ClickHouse connection plus the message channels that
// serialize inserts onto a single handler goroutine. A nil *Connection is
// valid and records nothing, so callers need no database to run.
type Connection struct {
	conn         clickhouse.Conn
	err          error
	sessionEntry *SessionMessage
	runmsg       chan *RunMessage
	filemsg      chan *FileMessage
	sync.WaitGroup
}

// IsConnected says whether this Connection reached a live server.
func (db *Connection) IsConnected() bool {
	return (db != nil) && (db.conn != nil) && (db.err == nil)
}

// PingServer checks that a ClickHouse server answers at the default address.
func PingServer() error {
	db := createConnection()
	if !db.IsConnected() {
		return fmt.Errorf("database is not connected")
	}
	v, err := db.conn.ServerVersion()
	if err != nil {
		return err
	}
	fmt.Printf("ClickHouse server is alive. Version:\n%s\n", v)
	db.conn.Close()
	return nil
}

// Start opens the database connection, logs the session row, and launches the
// handler goroutine. The returned Connection is usable even when no server
// answers: every Record* call on it becomes a no-op.
func Start(session *SessionMessage, abort <-chan struct{}) *Connection {
	db := createConnection()
	session.GoVersion = runtime.Version()
	session.CPUs = runtime.NumCPU()
	db.sessionEntry = session
	db.logSession()
	db.Add(1)
	go db.handleConnection(abort)
	return db
}

func createConnection() *Connection {
	db := &Connection{}
	dbUser := os.Getenv("LABDAQ_DB_USER")
	dbPass := os.Getenv("LABDAQ_DB_PASSWORD")
	auth := clickhouse.Auth{
		Database: databaseName,
		Username: dbUser,
		Password: dbPass,
	}
	client := clickhouse.ClientInfo{
		Products: []struct {
			Name    string
			Version string
		}{
			{Name: "labdaq", Version: "unknown"},
		},
	}
	opt := clickhouse.Options{
		Addr:       []string{"localhost:9000"},
		Auth:       auth,
		ClientInfo: client,
		TLS:        nil,
	}
	ctx := context.Background()
	conn, err := clickhouse.Open(&opt)
	if err != nil {
		db.err = err
		return db
	}
	db.conn = conn

	if err = conn.Ping(ctx); err != nil {
		if exception, ok := err.(*clickhouse.Exception); ok {
			fmt.Printf("Exception [%d] %s \n%s\n", exception.Code, exception.Message, exception.StackTrace)
		}
		db.err = err
		return db
	}

	db.runmsg = make(chan *RunMessage)
	db.filemsg = make(chan *FileMessage)
	return db
}

func (db *Connection) logSession() {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	se := db.sessionEntry
	formattedStart := se.Start.Format(dbTimeFormat)
	formattedEnd := se.End.Format(dbTimeFormat)
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO sessions VALUES (?, ?, ?, ?, ?, ?, ?)`, nowait,
		se.ID, se.Hostname, se.Version, se.GoVersion, se.CPUs,
		formattedStart, formattedEnd,
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into sessions ", err)
		db.err = err
	}
}

func (db *Connection) handleConnection(abort <-chan struct{}) {
	defer db.Done()
	for {
		select {
		case <-abort:
			db.Disconnect()
			return
		case rmsg := <-db.runmsg:
			db.handleRunMessage(rmsg)
		case fmsg := <-db.filemsg:
			db.handleFileMessage(fmsg)
		}
	}
}

// Disconnect stamps the session's end time into the database.
func (db *Connection) Disconnect() {
	if db.IsConnected() {
		db.sessionEntry.End = time.Now()
		db.logSession()
	}
}

// RecordRun takes a RunMessage and stores it in the DB (if it's open).
// This function will block until the select statement in `handleConnection`
// accepts the message.
// WARNING: Don't change this blocking behavior! It is how we ensure that a run
// is entered in the DB before any corresponding calls to `RecordFile` begin.
// Without the blocking, there would be a race between the 2 kinds of DB
// entries, and some files would be entered without valid run IDs.
func (db *Connection) RecordRun(msg *RunMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	db.runmsg <- msg
}

// FinishRun updates the run row with its end time and final row count.
func (db *Connection) FinishRun(msg *RunMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	if msg.End.IsZero() {
		msg.End = time.Now()
	}
	go func() { db.runmsg <- msg }()
}

// RecordFile stores one output file's metadata (if the DB is open).
func (db *Connection) RecordFile(msg *FileMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	go func() { db.filemsg <- msg }()
}

func (db *Connection) handleRunMessage(m *RunMessage) {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	formattedStart := m.Start.Format(dbTimeFormat)
	formattedEnd := m.End.Format(dbTimeFormat)
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		m.ID, db.sessionEntry.ID, m.Hostname, m.Version,
		m.OutputChannel, m.InputChannel, m.Rate, m.Iterations, m.Rows,
		m.Directory, formattedStart, formattedEnd,
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into runs ", err)
		db.err = err
	}
}

func (db *Connection) handleFileMessage(m *FileMessage) {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO files VALUES (?, ?, ?, ?, ?, ?)`, nowait,
		m.RunID, m.Filename, m.Filetype, m.Records, m.Size, m.SHA256,
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into files ", err)
		db.err = err
	}
}
