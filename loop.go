package labdaq

// The acquisition loop drives repeated write-then-read cycles at a caller
// chosen cadence, either for a fixed number of ticks or until externally
// cancelled. Scheduling is single-threaded and cooperative: everything runs
// on the goroutine that called Run, blocking hardware calls execute inline on
// each tick, and a cancellation request only takes effect at the next tick
// boundary. The tick source is injectable so the loop is testable without a
// live timer and so an application event loop can drive it.

import (
	"fmt"
	"sync"
	"time"
)

// Clock abstracts the tick source driving an acquisition loop.
type Clock interface {
	Tick() <-chan time.Time
	Stop()
}

type tickerClock struct {
	ticker *time.Ticker
}

// NewTickerClock returns a Clock backed by a time.Ticker.
func NewTickerClock(d time.Duration) Clock {
	return &tickerClock{ticker: time.NewTicker(d)}
}

func (c *tickerClock) Tick() <-chan time.Time { return c.ticker.C }
func (c *tickerClock) Stop()                  { c.ticker.Stop() }

// Tick describes one completed write/read cycle.
type Tick struct {
	Index   int           // 0-based iteration number
	Time    time.Time     // wall time the tick fired
	Elapsed time.Duration // since the loop started
	Output  float64       // value written this tick, if an output task is bound
	Input   float64       // value read this tick, if an input task is bound
}

// Stimulus produces the output sample for tick i.
type Stimulus func(i int) float64

// DefaultIOTimeout bounds each blocking hardware read and write when the
// LoopConfig leaves Timeout zero.
const DefaultIOTimeout = 5 * time.Second

// LoopConfig configures an acquisition loop.
type LoopConfig struct {
	// Iterations is the tick count for a finite run; 0 means continuous, i.e.
	// run until Stop is called.
	Iterations int

	// Interval between ticks, used when Run is given a nil Clock.
	Interval time.Duration

	// Timeout bounds each blocking read and write; zero means DefaultIOTimeout.
	Timeout time.Duration

	// OnTick is called after each write/read cycle with the produced samples.
	// It runs on the loop goroutine and must return before the next tick is
	// due, or subsequent ticks are delayed; no overlap or queueing is
	// attempted. A non-nil return aborts the run.
	OnTick func(Tick) error
}

// Loop drives write-then-read cycles over an output and/or input task. The
// loop owns both tasks once Run is called: whatever way the run ends, it
// stops and releases them.
type Loop struct {
	cfg      LoopConfig
	out      *Task
	in       *Task
	stimulus Stimulus

	abort    chan struct{}
	stopOnce sync.Once

	ticksDone int
	tickLock  sync.Mutex // guards ticksDone
}

// NewLoop prepares an acquisition loop. Either task may be nil; stimulus may
// be nil when there is no output task.
func NewLoop(out, in *Task, stimulus Stimulus, cfg LoopConfig) *Loop {
	return &Loop{
		cfg:      cfg,
		out:      out,
		in:       in,
		stimulus: stimulus,
		abort:    make(chan struct{}),
	}
}

// Stop requests cancellation of a continuous (or still-running finite) loop.
// It is safe to call from any goroutine and more than once; it takes effect
// at the next tick boundary, never preemptively mid-read.
func (lp *Loop) Stop() {
	lp.stopOnce.Do(func() { close(lp.abort) })
}

// TicksDone reports how many ticks have completed, in a race-free fashion.
func (lp *Loop) TicksDone() int {
	lp.tickLock.Lock()
	defer lp.tickLock.Unlock()
	return lp.ticksDone
}

func (lp *Loop) timeout() time.Duration {
	if lp.cfg.Timeout > 0 {
		return lp.cfg.Timeout
	}
	return DefaultIOTimeout
}

// Run starts the bound tasks and drives the loop until the iteration limit is
// reached, Stop is called, or a tick fails. Every exit path stops and
// releases the tasks; a tick failure aborts the remaining iterations with no
// retry and is returned to the caller.
func (lp *Loop) Run(clock Clock) (err error) {
	defer func() {
		for _, task := range []*Task{lp.out, lp.in} {
			if task == nil {
				continue
			}
			if serr := task.Stop(); serr != nil && err == nil {
				err = serr
			}
			if rerr := task.Release(); rerr != nil && err == nil {
				err = rerr
			}
		}
	}()

	if lp.out == nil && lp.in == nil {
		return configErrorf("acquisition loop has neither an output nor an input task")
	}
	if clock == nil {
		if lp.cfg.Interval <= 0 {
			return configErrorf("acquisition loop interval %v is not positive", lp.cfg.Interval)
		}
		clock = NewTickerClock(lp.cfg.Interval)
	}
	defer clock.Stop()

	for _, task := range []*Task{lp.out, lp.in} {
		if task == nil {
			continue
		}
		if err := task.Start(); err != nil {
			return err
		}
	}

	start := time.Now()
	for i := 0; lp.cfg.Iterations == 0 || i < lp.cfg.Iterations; i++ {
		select {
		case <-lp.abort:
			return nil
		case now := <-clock.Tick():
			tick, err := lp.oneTick(i, now, start)
			if err != nil {
				return err
			}
			lp.tickLock.Lock()
			lp.ticksDone++
			lp.tickLock.Unlock()
			if lp.cfg.OnTick != nil {
				if err := lp.cfg.OnTick(tick); err != nil {
					return fmt.Errorf("tick %d callback: %w", i, err)
				}
			}
		}
	}
	return nil
}

// oneTick performs the write (if an output task is bound) immediately
// followed by the read (if an input task is bound). The ordering is strict so
// output-then-measure semantics stay deterministic within a tick.
func (lp *Loop) oneTick(i int, now, start time.Time) (Tick, error) {
	tick := Tick{Index: i, Time: now, Elapsed: time.Since(start)}
	if lp.out != nil {
		if lp.stimulus != nil {
			tick.Output = lp.stimulus(i)
		}
		buffer := SampleBuffer{Samples: []float64{tick.Output}}
		if _, err := lp.out.Write(buffer, lp.timeout()); err != nil {
			return tick, err
		}
	}
	if lp.in != nil {
		buffer, err := lp.in.Read(1, lp.timeout())
		if err != nil {
			return tick, err
		}
		if len(buffer.Samples) > 0 {
			tick.Input = buffer.Samples[0]
		}
	}
	return tick, nil
}
