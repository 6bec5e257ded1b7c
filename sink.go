package labdaq

// Sinks persist or forward the sample rows an acquisition run produces. Each
// sink is independent and optional: a run may attach zero, one, or several,
// and a failing sink never unwinds the run or the other sinks.

import "time"

// RunInfo describes one acquisition run for the sinks and the run recorder.
type RunInfo struct {
	ID            string // ULID, assigned when the run starts
	Start         time.Time
	End           time.Time
	OutputChannel string
	InputChannel  string
	SampleRate    float64
	Interval      time.Duration
	Iterations    int    // 0 for continuous runs
	Directory     string // run directory all local files land in
	CSVFilename   string // set by the CSV sink once its file exists
	NpyFilename   string // set by the npy sink once its archive is written
	Rows          int    // set when the run finishes
}

// Row is one acquired sample row, in the column order the sinks persist.
type Row struct {
	Timestamp time.Time
	Elapsed   float64 // seconds since the run started
	AO        float64 // output voltage written this tick
	AI        float64 // input voltage read this tick
}

// Sink is any destination that persists acquired rows during or after a run.
// Start is called once before the first row, Append once per tick, and Close
// once after the last row (also after a failed Start, so implementations must
// tolerate that).
type Sink interface {
	Name() string
	Start(run *RunInfo) error
	Append(row Row) error
	Close(run *RunInfo) error
}

// SinkGroup fans rows out to several sinks and isolates their failures: a
// sink that fails is logged, recorded, and dropped from the rest of the run,
// while the other sinks keep receiving rows. Close is called in the order the
// sinks were attached, so a sink that consumes another's finished output (the
// remote uploader reading the CSV file) must be attached after it.
type SinkGroup struct {
	sinks  []Sink
	failed []bool
	errs   []error
}

// NewSinkGroup collects sinks into a group. A nil sink is skipped.
func NewSinkGroup(sinks ...Sink) *SinkGroup {
	g := &SinkGroup{}
	for _, s := range sinks {
		if s != nil {
			g.sinks = append(g.sinks, s)
		}
	}
	g.failed = make([]bool, len(g.sinks))
	return g
}

func (g *SinkGroup) noteFailure(i int, op string, err error) {
	g.failed[i] = true
	serr := &SinkError{Sink: g.sinks[i].Name(), Op: op, Err: err}
	g.errs = append(g.errs, serr)
	ProblemLogger.Print(serr)
}

// Start opens every sink. Failures are isolated; the group itself never
// refuses to start.
func (g *SinkGroup) Start(run *RunInfo) {
	for i, s := range g.sinks {
		if err := s.Start(run); err != nil {
			g.noteFailure(i, "start", err)
		}
	}
}

// Append forwards one row to every sink that is still healthy.
func (g *SinkGroup) Append(row Row) {
	for i, s := range g.sinks {
		if g.failed[i] {
			continue
		}
		if err := s.Append(row); err != nil {
			g.noteFailure(i, "append", err)
		}
	}
}

// Close closes every sink, healthy or not, in attachment order.
func (g *SinkGroup) Close(run *RunInfo) {
	for i, s := range g.sinks {
		if err := s.Close(run); err != nil && !g.failed[i] {
			g.noteFailure(i, "close", err)
		}
	}
}

// Errors returns the sink failures observed during the run, for reporting.
// They are never fatal to the run itself.
func (g *SinkGroup) Errors() []error {
	return g.errs
}
