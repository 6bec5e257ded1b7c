package labdaq

// The CSV sink writes the run's ordered (time, output, input) table to one
// timestamp-named delimited file per run, with fixed 3-decimal formatting.
// Rows go through an asynchronous buffered writer so a slow disk never stalls
// the acquisition loop.

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labdaq/labdaq/asyncbufio"
)

// csvHeader is the column header line of a run's data file.
const csvHeader = "Time (s),AO (V),AI (V)\n"

const (
	csvQueueDepth    = 1024
	csvFlushInterval = time.Second
)

// CSVSink writes acquisition rows to a data_<timestamp>.csv file in the run
// directory. The file is append-only within a run and one file is created per
// run.
type CSVSink struct {
	path  string
	file  *os.File
	w     *asyncbufio.Writer
	nrows int
}

// NewCSVSink returns a CSV sink. The file path is decided at Start from the
// run's directory and start time.
func NewCSVSink() *CSVSink {
	return &CSVSink{}
}

// Name implements Sink.
func (s *CSVSink) Name() string { return "csv" }

// Start creates the run's data file and writes the header row.
func (s *CSVSink) Start(run *RunInfo) error {
	filename := fmt.Sprintf("data_%s.csv", run.Start.Format("20060102_150405"))
	s.path = filepath.Join(run.Directory, filename)
	file, err := os.Create(s.path)
	if err != nil {
		return &SinkError{Sink: s.Name(), Op: "start", Err: err}
	}
	s.file = file
	s.w = asyncbufio.NewWriter(file, csvQueueDepth, csvFlushInterval)
	if _, err := s.w.WriteString(csvHeader); err != nil {
		file.Close()
		s.file = nil
		return &SinkError{Sink: s.Name(), Op: "start", Err: err}
	}
	run.CSVFilename = s.path
	return nil
}

// Append writes one row with 3-decimal formatting.
func (s *CSVSink) Append(row Row) error {
	if s.file == nil {
		return sinkErrorf(s.Name(), "append", "sink is not started")
	}
	line := strconv.FormatFloat(row.Elapsed, 'f', 3, 64) + "," +
		strconv.FormatFloat(row.AO, 'f', 3, 64) + "," +
		strconv.FormatFloat(row.AI, 'f', 3, 64) + "\n"
	if _, err := s.w.WriteString(line); err != nil {
		return &SinkError{Sink: s.Name(), Op: "append", Err: err}
	}
	s.nrows++
	return nil
}

// Close flushes and closes the data file.
func (s *CSVSink) Close(run *RunInfo) error {
	if s.file == nil {
		return nil
	}
	s.w.Close()
	cerr := s.file.Close()
	s.file = nil
	if cerr != nil {
		return &SinkError{Sink: s.Name(), Op: "close", Err: cerr}
	}
	UpdateLogger.Printf("wrote %d rows to %s", s.nrows, s.path)
	return nil
}

// Path returns the data file's path, once Start has chosen it.
func (s *CSVSink) Path() string { return s.path }

// ReadCSVRows reads back a data file written by a CSVSink, for verification
// and reprocessing. The returned rows carry the parsed elapsed time and
// voltages; timestamps are not stored in the file.
func ReadCSVRows(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("file %s has no header row", path)
	}
	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) != 3 {
			return nil, fmt.Errorf("file %s: row has %d columns, want 3", path, len(record))
		}
		var row Row
		var errs [3]error
		row.Elapsed, errs[0] = strconv.ParseFloat(record[0], 64)
		row.AO, errs[1] = strconv.ParseFloat(record[1], 64)
		row.AI, errs[2] = strconv.ParseFloat(record[2], 64)
		for _, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("file %s: %v", path, err)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
