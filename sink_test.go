package labdaq

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRun(t *testing.T) *RunInfo {
	t.Helper()
	return &RunInfo{
		ID:        "01TESTULID0000000000000000",
		Start:     time.Date(2026, 8, 26, 14, 30, 5, 0, time.UTC),
		Directory: t.TempDir(),
	}
}

func testRows(n int) []Row {
	base := time.Date(2026, 8, 26, 14, 30, 5, 0, time.UTC)
	stimulus := DefaultSineStimulus()
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{
			Timestamp: base.Add(time.Duration(i) * 100 * time.Millisecond),
			Elapsed:   0.1 * float64(i),
			AO:        stimulus(i),
			AI:        stimulus(i) + 0.001,
		}
	}
	return rows
}

func TestCSVSinkRoundTrip(t *testing.T) {
	run := testRun(t)
	sink := NewCSVSink()
	require.NoError(t, sink.Start(run))
	rows := testRows(100)
	for _, row := range rows {
		require.NoError(t, sink.Append(row))
	}
	require.NoError(t, sink.Close(run))

	wantName := "data_20260826_143005.csv"
	if filepath.Base(sink.Path()) != wantName {
		t.Errorf("CSV file is named %q, want %q", filepath.Base(sink.Path()), wantName)
	}
	if run.CSVFilename != sink.Path() {
		t.Errorf("run.CSVFilename is %q, want %q", run.CSVFilename, sink.Path())
	}

	raw, err := os.ReadFile(sink.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if lines[0] != "Time (s),AO (V),AI (V)" {
		t.Errorf("header is %q", lines[0])
	}
	if len(lines) != len(rows)+1 {
		t.Fatalf("file has %d lines, want %d", len(lines), len(rows)+1)
	}
	// Every value is rendered with exactly 3 decimals.
	for _, field := range strings.Split(lines[1], ",") {
		dot := strings.IndexByte(field, '.')
		if dot < 0 || len(field)-dot-1 != 3 {
			t.Errorf("field %q is not 3-decimal formatted", field)
		}
	}

	parsed, err := ReadCSVRows(sink.Path())
	require.NoError(t, err)
	require.Len(t, parsed, len(rows))
	for i, row := range rows {
		if math.Abs(parsed[i].Elapsed-row.Elapsed) > 0.0005 {
			t.Errorf("row %d elapsed %g, want %g to 3 decimals", i, parsed[i].Elapsed, row.Elapsed)
		}
		if math.Abs(parsed[i].AO-row.AO) > 0.0005 {
			t.Errorf("row %d AO %g, want %g to 3 decimals", i, parsed[i].AO, row.AO)
		}
		if math.Abs(parsed[i].AI-row.AI) > 0.0005 {
			t.Errorf("row %d AI %g, want %g to 3 decimals", i, parsed[i].AI, row.AI)
		}
	}
}

func TestCSVSinkAppendBeforeStart(t *testing.T) {
	sink := NewCSVSink()
	err := sink.Append(Row{})
	var serr *SinkError
	if !errors.As(err, &serr) {
		t.Errorf("Append before Start returned %v, want *SinkError", err)
	}
	// Close before Start must be a quiet no-op.
	if err := sink.Close(&RunInfo{}); err != nil {
		t.Errorf("Close before Start returned %v", err)
	}
}

func TestSQLiteSinkArchivesRows(t *testing.T) {
	run := testRun(t)
	dbPath := filepath.Join(t.TempDir(), "archive.db")
	sink := NewSQLiteSink(dbPath)
	require.NoError(t, sink.Start(run))
	rows := testRows(20)
	for _, row := range rows {
		require.NoError(t, sink.Append(row))
	}
	require.NoError(t, sink.Close(run))

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM acquisition_data").Scan(&count))
	assert.Equal(t, len(rows), count)

	var id int
	var timestamp string
	var elapsed, ao, ai float64
	err = db.QueryRow("SELECT id, timestamp, time, ao_voltage, ai_voltage FROM acquisition_data ORDER BY id LIMIT 1").
		Scan(&id, &timestamp, &elapsed, &ao, &ai)
	require.NoError(t, err)
	assert.Equal(t, 1, id) // autoincrement starts at 1
	assert.Equal(t, rows[0].Timestamp.Format(sqliteTimeFormat), timestamp)
	assert.Equal(t, rows[0].Elapsed, elapsed)
	assert.Equal(t, rows[0].AO, ao)
	assert.Equal(t, rows[0].AI, ai)

	// A second run appends to the same table.
	sink2 := NewSQLiteSink(dbPath)
	require.NoError(t, sink2.Start(run))
	require.NoError(t, sink2.Append(rows[0]))
	require.NoError(t, sink2.Close(run))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM acquisition_data").Scan(&count))
	assert.Equal(t, len(rows)+1, count)
}

func TestNpySinkWritesTrace(t *testing.T) {
	run := testRun(t)
	sink := NewNpySink()
	require.NoError(t, sink.Start(run))
	rows := testRows(10)
	for _, row := range rows {
		require.NoError(t, sink.Append(row))
	}
	require.NoError(t, sink.Close(run))

	path := filepath.Join(run.Directory, "ai_20260826_143005.npy")
	// The finished archive is reported back so the run recorder can file it.
	assert.Equal(t, path, run.NpyFilename)
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var got []float64
	require.NoError(t, npyio.Read(file, &got))
	require.Len(t, got, len(rows))
	for i, row := range rows {
		assert.Equal(t, row.AI, got[i])
	}
}

// stubUploader records upload calls and fails on demand.
type stubUploader struct {
	err      error
	uploaded []string
	folder   string
}

func (u *stubUploader) Upload(localPath, folderID string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.uploaded = append(u.uploaded, localPath)
	u.folder = folderID
	return "remote-file-id", nil
}

func TestRemoteSinkUploadsAfterCSV(t *testing.T) {
	run := testRun(t)
	uploader := &stubUploader{}
	group := NewSinkGroup(NewCSVSink(), NewRemoteSink(uploader, "folder123"))
	group.Start(run)
	for _, row := range testRows(5) {
		group.Append(row)
	}
	group.Close(run)

	require.Empty(t, group.Errors())
	require.Len(t, uploader.uploaded, 1)
	assert.Equal(t, run.CSVFilename, uploader.uploaded[0])
	assert.Equal(t, "folder123", uploader.folder)
}

func TestRemoteFailureKeepsLocalData(t *testing.T) {
	run := testRun(t)
	uploader := &stubUploader{err: fmt.Errorf("remote store unreachable")}
	group := NewSinkGroup(NewCSVSink(), NewRemoteSink(uploader, "folder123"))
	group.Start(run)
	rows := testRows(5)
	for _, row := range rows {
		group.Append(row)
	}
	group.Close(run)

	// The failure is reported as a SinkError but the CSV file is intact.
	errs := group.Errors()
	require.Len(t, errs, 1)
	var serr *SinkError
	require.ErrorAs(t, errs[0], &serr)
	assert.Equal(t, "remote", serr.Sink)

	parsed, err := ReadCSVRows(run.CSVFilename)
	require.NoError(t, err)
	assert.Len(t, parsed, len(rows))
}

// explodingSink fails on the nth Append.
type explodingSink struct {
	failAt  int
	appends int
}

func (s *explodingSink) Name() string             { return "exploding" }
func (s *explodingSink) Start(run *RunInfo) error { return nil }
func (s *explodingSink) Close(run *RunInfo) error { return nil }
func (s *explodingSink) Append(row Row) error {
	s.appends++
	if s.appends >= s.failAt {
		return fmt.Errorf("boom on append %d", s.appends)
	}
	return nil
}

func TestSinkGroupIsolatesFailures(t *testing.T) {
	run := testRun(t)
	bad := &explodingSink{failAt: 3}
	csv := NewCSVSink()
	group := NewSinkGroup(bad, csv)
	group.Start(run)
	rows := testRows(10)
	for _, row := range rows {
		group.Append(row)
	}
	group.Close(run)

	// The failing sink was dropped after its error; the CSV sink got all rows.
	assert.Equal(t, 3, bad.appends)
	parsed, err := ReadCSVRows(csv.Path())
	require.NoError(t, err)
	assert.Len(t, parsed, len(rows))
	require.Len(t, group.Errors(), 1)
}

func TestSinkGroupSkipsNil(t *testing.T) {
	run := testRun(t)
	group := NewSinkGroup(nil, NewCSVSink(), nil)
	group.Start(run)
	group.Append(testRows(1)[0])
	group.Close(run)
	assert.Empty(t, group.Errors())
}

func TestRemoteSinkMisconfigured(t *testing.T) {
	run := testRun(t)
	group := NewSinkGroup(NewRemoteSink(nil, "")) // no uploader, no folder
	group.Start(run)
	group.Close(run)
	require.Len(t, group.Errors(), 1)
}
