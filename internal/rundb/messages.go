package rundb

import "time"

// The composite types used for messages to the ClickHouse database.

// SessionMessage is the information for the sessions table: one row per
// labdaq process lifetime.
type SessionMessage struct {
	ID        string
	Hostname  string
	Version   string
	GoVersion string
	CPUs      int
	Start     time.Time
	End       time.Time
}

// RunMessage is the information required to make an entry in the runs table.
type RunMessage struct {
	ID            string
	SessionID     string
	Hostname      string
	Version       string
	OutputChannel string
	InputChannel  string
	Rate          float64
	Iterations    int
	Rows          int
	Directory     string
	Start         time.Time
	End           time.Time
}

// FileMessage is the information required to make an entry in the files table.
type FileMessage struct {
	RunID    string
	Filename string
	Filetype string
	Records  int
	Size     int64
	SHA256   string
}

// NewFileMessage fills a FileMessage with the fields every caller has on hand.
func NewFileMessage(runID, filename, filetype string, records int) *FileMessage {
	return &FileMessage{
		RunID:    runID,
		Filename: filename,
		Filetype: filetype,
		Records:  records,
	}
}
