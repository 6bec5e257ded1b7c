package labdaq

// The npy sink keeps the run's raw input samples in memory and dumps them to
// a NumPy .npy archive when the run finishes, for offline analysis.

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio"
)

// NpySink archives the run's AI samples as a one-dimensional float64 .npy
// file named ai_<timestamp>.npy in the run directory.
type NpySink struct {
	path    string
	samples []float64
}

// NewNpySink returns an npy archive sink.
func NewNpySink() *NpySink {
	return &NpySink{}
}

// Name implements Sink.
func (s *NpySink) Name() string { return "npy" }

// Start records the archive path for this run.
func (s *NpySink) Start(run *RunInfo) error {
	filename := fmt.Sprintf("ai_%s.npy", run.Start.Format("20060102_150405"))
	s.path = filepath.Join(run.Directory, filename)
	s.samples = s.samples[:0]
	return nil
}

// Append accumulates the input sample.
func (s *NpySink) Append(row Row) error {
	s.samples = append(s.samples, row.AI)
	return nil
}

// Close writes the accumulated samples to the archive.
func (s *NpySink) Close(run *RunInfo) error {
	if s.path == "" {
		return nil
	}
	file, err := os.Create(s.path)
	if err != nil {
		return &SinkError{Sink: s.Name(), Op: "close", Err: err}
	}
	werr := npyio.Write(file, s.samples)
	cerr := file.Close()
	if werr != nil {
		return &SinkError{Sink: s.Name(), Op: "close", Err: werr}
	}
	if cerr != nil {
		return &SinkError{Sink: s.Name(), Op: "close", Err: cerr}
	}
	run.NpyFilename = s.path
	return nil
}
