package labdaq

// Runner executes one complete acquisition run: create the output and input
// tasks, drive the acquisition loop, fan each tick's row out to the attached
// sinks, then close the sinks and record the run's metadata. The control flow
// is the classic linear script — configure, start, loop, stop, release,
// persist — with release guaranteed on every exit path by the loop.

import (
	"sync"
	"time"

	"github.com/labdaq/labdaq/internal/rundb"
	"github.com/oklog/ulid/v2"
)

// DefaultSampleRate is the input task's sample clock rate when the RunConfig
// leaves Rate zero.
const DefaultSampleRate = 1000.0

// RunConfig fully describes one acquisition run. It replaces the per-script
// globals of ad hoc setups: everything the run needs arrives here.
type RunConfig struct {
	OutputChannel string        // physical AO channel, e.g. "SimDev1/ao0"; "" for input-only runs
	InputChannel  string        // physical AI channel, e.g. "SimDev1/ai0"; "" for output-only runs
	Rate          float64       // input sample clock rate; 0 means DefaultSampleRate
	Interval      time.Duration // tick cadence
	Iterations    int           // 0 means continuous (run until Stop)
	Timeout       time.Duration // per-read/write bound; 0 means DefaultIOTimeout

	BasePath      string // directory runs are filed under; required for file sinks
	WriteCSV      bool
	SQLitePath    string // "" disables the SQLite sink
	WriteNpy      bool
	DriveFolderID string // "" disables the remote upload sink
}

// Runner owns one run. Optional collaborators (clock, stimulus, uploader,
// recorder) may be set between NewRunner and Run; nil means the default sine
// stimulus, a real ticker, and no remote upload or metadata recording.
type Runner struct {
	Clock    Clock
	Stimulus Stimulus
	Uploader Uploader
	Recorder *rundb.Connection

	driver   Driver
	cfg      RunConfig
	writing  WritingState
	ai       []float64
	sinkErrs []error

	loop     *Loop
	loopLock sync.Mutex // guards loop for Stop from another goroutine
}

// NewRunner prepares a run against the given driver.
func NewRunner(driver Driver, cfg RunConfig) *Runner {
	return &Runner{driver: driver, cfg: cfg}
}

// Stop requests cancellation of a continuous run; it takes effect at the next
// tick boundary. Safe to call from any goroutine, before or during Run.
func (r *Runner) Stop() {
	r.loopLock.Lock()
	defer r.loopLock.Unlock()
	if r.loop != nil {
		r.loop.Stop()
	}
}

// TicksDone reports how many ticks the active run has completed.
func (r *Runner) TicksDone() int {
	r.loopLock.Lock()
	defer r.loopLock.Unlock()
	if r.loop == nil {
		return 0
	}
	return r.loop.TicksDone()
}

func (r *Runner) validate() error {
	if r.cfg.OutputChannel == "" && r.cfg.InputChannel == "" {
		return configErrorf("run has neither an output nor an input channel")
	}
	if r.cfg.Interval <= 0 && r.Clock == nil {
		return configErrorf("run interval %v is not positive", r.cfg.Interval)
	}
	if (r.cfg.WriteCSV || r.cfg.WriteNpy) && r.cfg.BasePath == "" {
		return configErrorf("file sinks are enabled but BasePath is empty")
	}
	if r.cfg.DriveFolderID != "" && !r.cfg.WriteCSV {
		return configErrorf("remote upload needs the CSV sink enabled")
	}
	return nil
}

// createTasks claims the output and input channels. On any failure it
// releases whatever it already claimed and returns the error untouched, so
// ConfigurationError and HardwareUnavailableError reach the caller verbatim.
func (r *Runner) createTasks() (out, in *Task, err error) {
	rate := r.cfg.Rate
	if rate == 0 {
		rate = DefaultSampleRate
	}
	if r.cfg.OutputChannel != "" {
		outCfg := TaskConfig{
			Name: "ao",
			Channels: []ChannelSpec{{
				Physical: r.cfg.OutputChannel,
				Role:     AnalogOut,
				Range:    VoltageRange{Min: 0.0, Max: 5.0},
			}},
			Timing: TimingSpec{Mode: SingleShot},
		}
		if out, err = Create(r.driver, outCfg); err != nil {
			return nil, nil, err
		}
	}
	if r.cfg.InputChannel != "" {
		inCfg := TaskConfig{
			Name: "ai",
			Channels: []ChannelSpec{{
				Physical: r.cfg.InputChannel,
				Role:     AnalogIn,
				Range:    VoltageRange{Min: 0.0, Max: 5.0},
			}},
			Timing: TimingSpec{Mode: Continuous, Rate: rate},
		}
		if in, err = Create(r.driver, inCfg); err != nil {
			if out != nil {
				out.Release()
			}
			return nil, nil, err
		}
	}
	return out, in, nil
}

func (r *Runner) buildSinks() *SinkGroup {
	var sinks []Sink
	if r.cfg.WriteCSV {
		sinks = append(sinks, NewCSVSink())
	}
	if r.cfg.SQLitePath != "" {
		sinks = append(sinks, NewSQLiteSink(r.cfg.SQLitePath))
	}
	if r.cfg.WriteNpy {
		sinks = append(sinks, NewNpySink())
	}
	if r.cfg.DriveFolderID != "" {
		// after the CSV sink: the upload consumes its finished file
		sinks = append(sinks, NewRemoteSink(r.Uploader, r.cfg.DriveFolderID))
	}
	return NewSinkGroup(sinks...)
}

// Run performs the acquisition and returns the end-of-run summary. The
// returned error reflects the acquisition itself; sink failures are isolated,
// logged, and available from SinkErrors.
func (r *Runner) Run() (RunSummary, error) {
	if err := r.validate(); err != nil {
		return RunSummary{}, err
	}

	out, in, err := r.createTasks()
	if err != nil {
		return RunSummary{}, err
	}

	run := &RunInfo{
		ID:            ulid.Make().String(),
		Start:         time.Now(),
		OutputChannel: r.cfg.OutputChannel,
		InputChannel:  r.cfg.InputChannel,
		SampleRate:    r.cfg.Rate,
		Interval:      r.cfg.Interval,
		Iterations:    r.cfg.Iterations,
	}
	if r.cfg.BasePath != "" {
		dir, derr := r.writing.Start(r.cfg.BasePath)
		if derr != nil {
			if out != nil {
				out.Release()
			}
			if in != nil {
				in.Release()
			}
			return RunSummary{}, derr
		}
		run.Directory = dir
	}

	group := r.buildSinks()
	group.Start(run)

	stimulus := r.Stimulus
	if stimulus == nil {
		stimulus = DefaultSineStimulus()
	}

	r.ai = r.ai[:0]
	loopCfg := LoopConfig{
		Iterations: r.cfg.Iterations,
		Interval:   r.cfg.Interval,
		Timeout:    r.cfg.Timeout,
		OnTick: func(tick Tick) error {
			row := Row{
				Timestamp: time.Now(),
				Elapsed:   tick.Elapsed.Seconds(),
				AO:        tick.Output,
				AI:        tick.Input,
			}
			group.Append(row)
			r.ai = append(r.ai, tick.Input)
			return nil
		},
	}
	r.loopLock.Lock()
	r.loop = NewLoop(out, in, stimulus, loopCfg)
	loop := r.loop
	r.loopLock.Unlock()

	r.recordRunStart(run)
	runErr := loop.Run(r.Clock)

	run.End = time.Now()
	run.Rows = len(r.ai)
	group.Close(run)
	r.writing.Stop()
	r.recordRunEnd(run)

	r.sinkErrs = group.Errors()
	summary := summarize(r.ai)
	if runErr != nil {
		ProblemLogger.Printf("run %s aborted after %d ticks: %v", run.ID, run.Rows, runErr)
	} else {
		UpdateLogger.Printf("run %s finished: %v", run.ID, summary)
	}
	return summary, runErr
}

// SinkErrors returns the isolated sink failures of the last run.
func (r *Runner) SinkErrors() []error {
	return r.sinkErrs
}

func (r *Runner) recordRunStart(run *RunInfo) {
	msg := &rundb.RunMessage{
		ID:            run.ID,
		Hostname:      Build.Host,
		Version:       Build.Version,
		OutputChannel: run.OutputChannel,
		InputChannel:  run.InputChannel,
		Rate:          run.SampleRate,
		Iterations:    run.Iterations,
		Directory:     run.Directory,
		Start:         run.Start,
	}
	r.Recorder.RecordRun(msg)
}

func (r *Runner) recordRunEnd(run *RunInfo) {
	msg := &rundb.RunMessage{
		ID:   run.ID,
		Rows: run.Rows,
		End:  run.End,
	}
	r.Recorder.FinishRun(msg)
	if run.CSVFilename != "" {
		r.Recorder.RecordFile(rundb.NewFileMessage(run.ID, run.CSVFilename, "csv", run.Rows))
	}
	if run.NpyFilename != "" {
		r.Recorder.RecordFile(rundb.NewFileMessage(run.ID, run.NpyFilename, "npy", run.Rows))
	}
}
