package labdaq

import (
	"fmt"
	"sync"
	"time"
)

// TaskState is used to indicate the lifecycle state of a Task.
type TaskState int

// Names for the possible values of TaskState
const (
	Unconfigured TaskState = iota // No driver handle is bound yet
	Idle                          // Configured and claimed, not started
	Running                       // Started; reads and writes are valid
	Stopped                       // Stopped; hardware still claimed
	Released                      // Hardware freed; terminal
	Errored                       // Driver fault; only Stop/Release are valid
)

func (s TaskState) String() string {
	switch s {
	case Unconfigured:
		return "Unconfigured"
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Released:
		return "Released"
	case Errored:
		return "Errored"
	}
	return fmt.Sprintf("TaskState(%d)", int(s))
}

// SampleBuffer is an ordered sequence of sample values produced by one read
// or consumed by one write, tagged with the index of the channel it belongs
// to within its task.
type SampleBuffer struct {
	ChannelIndex int
	Samples      []float64
}

// Task wraps one driver task handle behind a state machine so that the
// underlying hardware is released exactly once on every exit path. A Task has
// one exclusive owner at a time; concurrent use of a single handle is not
// supported beyond the state query methods.
type Task struct {
	config TaskConfig
	handle DriverTask

	state     TaskState
	stateLock sync.Mutex // guards state
}

// Create validates cfg, claims its channels with the driver, and returns a
// task in the Idle state. Invalid channel/timing combinations fail with
// ConfigurationError before the driver is touched; missing or already-claimed
// channels fail with HardwareUnavailableError.
func Create(drv Driver, cfg TaskConfig) (*Task, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	handle, err := drv.CreateTask(cfg)
	if err != nil {
		return nil, classifyDriverError("create", firstChannel(cfg), err)
	}
	return &Task{config: cfg, handle: handle, state: Idle}, nil
}

// WithTask runs fn with a freshly created task and guarantees Release on
// every exit path, including a panicking fn.
func WithTask(drv Driver, cfg TaskConfig, fn func(*Task) error) error {
	task, err := Create(drv, cfg)
	if err != nil {
		return err
	}
	defer task.Release()
	return fn(task)
}

func firstChannel(cfg TaskConfig) string {
	if len(cfg.Channels) == 0 {
		return ""
	}
	return cfg.Channels[0].Physical
}

// Config returns a copy of the task's configuration.
func (t *Task) Config() TaskConfig {
	return t.config
}

// State returns the task state in a race-free fashion.
func (t *Task) State() TaskState {
	t.stateLock.Lock()
	defer t.stateLock.Unlock()
	return t.state
}

func (t *Task) channel() string {
	return firstChannel(t.config)
}

// Start transitions Idle → Running. A driver refusal (device vanished,
// channel reclaimed) surfaces as HardwareUnavailableError or
// HardwareFaultError and parks the task in Errored.
func (t *Task) Start() error {
	t.stateLock.Lock()
	defer t.stateLock.Unlock()
	if t.state != Idle {
		return fmt.Errorf("cannot Start a task that's %v, not Idle", t.state)
	}
	if err := t.handle.Start(); err != nil {
		t.state = Errored
		return classifyDriverError("start", t.channel(), err)
	}
	t.state = Running
	return nil
}

// Read blocks until count samples per channel are available or the timeout
// expires. Valid only in the Running state.
func (t *Task) Read(count int, timeout time.Duration) (SampleBuffer, error) {
	if s := t.State(); s != Running {
		return SampleBuffer{}, fmt.Errorf("cannot Read from a task that's %v, not Running", s)
	}
	samples, err := t.handle.Read(count, timeout)
	if err != nil {
		err = classifyDriverError("read", t.channel(), err)
		t.noteFault(err)
		return SampleBuffer{}, err
	}
	return SampleBuffer{Samples: samples}, nil
}

// Write blocks until the samples are consumed or the timeout expires, and
// reports how many were consumed. Valid only in the Running state.
func (t *Task) Write(buffer SampleBuffer, timeout time.Duration) (int, error) {
	if s := t.State(); s != Running {
		return 0, fmt.Errorf("cannot Write to a task that's %v, not Running", s)
	}
	n, err := t.handle.Write(buffer.Samples, false, timeout)
	if err != nil {
		err = classifyDriverError("write", t.channel(), err)
		t.noteFault(err)
		return n, err
	}
	return n, nil
}

// noteFault moves the task to Errored on a driver fault. Timeouts leave the
// state alone: the task is still valid, the caller just didn't get samples in
// time.
func (t *Task) noteFault(err error) {
	if _, isTimeout := err.(*TimeoutError); isTimeout {
		return
	}
	t.stateLock.Lock()
	defer t.stateLock.Unlock()
	if t.state == Running {
		t.state = Errored
	}
}

// Stop halts acquisition but keeps the hardware claimed. Stop is idempotent:
// stopping an already-stopped, idle, or released task is a no-op.
func (t *Task) Stop() error {
	t.stateLock.Lock()
	defer t.stateLock.Unlock()
	switch t.state {
	case Running:
		if err := t.handle.Stop(); err != nil {
			t.state = Errored
			return classifyDriverError("stop", t.channel(), err)
		}
		t.state = Stopped
	case Errored:
		// Best effort. The fault already happened; Release must still work.
		if err := t.handle.Stop(); err != nil {
			ProblemLogger.Printf("ignoring driver error stopping errored task on %q: %v", t.channel(), err)
		}
	case Idle:
		t.state = Stopped
	case Stopped, Released:
		// idempotent
	}
	return nil
}

// Release frees the underlying hardware for reuse. It is idempotent and valid
// from every state, including Errored; reads and writes after Release are
// invalid.
func (t *Task) Release() error {
	t.stateLock.Lock()
	defer t.stateLock.Unlock()
	if t.state == Released || t.state == Unconfigured {
		t.state = Released
		return nil
	}
	if t.state == Running {
		if err := t.handle.Stop(); err != nil {
			ProblemLogger.Printf("ignoring driver error stopping task on %q before release: %v", t.channel(), err)
		}
	}
	err := t.handle.Clear()
	t.state = Released
	if err != nil {
		return classifyDriverError("release", t.channel(), err)
	}
	return nil
}
