package labdaq

// The hardware driver boundary. Vendor DAQ stacks all expose the same task
// and channel shape: bind physical channels to logical roles, configure a
// sample clock, start, blocking read/write, stop, clear. Driver and
// DriverTask consume exactly that capability set. The vendor implementation
// lives outside this module; simulated_devices.go provides the in-tree
// loopback implementation used by the demo programs and the tests.

import (
	"fmt"
	"strings"
	"time"
)

// ChannelRole is the logical role a physical channel is bound to.
type ChannelRole int

// Names for the possible values of ChannelRole
const (
	AnalogIn ChannelRole = iota
	AnalogOut
	DigitalIn
	DigitalOut
	CounterOut
)

func (r ChannelRole) String() string {
	switch r {
	case AnalogIn:
		return "analog input"
	case AnalogOut:
		return "analog output"
	case DigitalIn:
		return "digital input"
	case DigitalOut:
		return "digital output"
	case CounterOut:
		return "counter output"
	}
	return fmt.Sprintf("ChannelRole(%d)", int(r))
}

func (r ChannelRole) analog() bool {
	return r == AnalogIn || r == AnalogOut
}

func (r ChannelRole) digital() bool {
	return r == DigitalIn || r == DigitalOut
}

func (r ChannelRole) input() bool {
	return r == AnalogIn || r == DigitalIn
}

// VoltageRange bounds the expected signal on an analog channel.
type VoltageRange struct {
	Min float64
	Max float64
}

// LineGrouping says how the physical lines of a digital channel are grouped.
type LineGrouping int

// Enumeration of digital line groupings
const (
	OneChannelPerLine LineGrouping = iota
	OneChannelAllLines
)

// ChannelSpec binds one physical channel to a logical role, with a voltage
// range for analog roles or a line grouping for digital roles. A ChannelSpec
// is immutable once attached to a TaskConfig.
type ChannelSpec struct {
	Physical string // e.g. "Dev1/ai0" or "Dev1/port0/line0:7"
	Role     ChannelRole
	Range    VoltageRange // analog roles only
	Grouping LineGrouping // digital roles only
}

// TimingMode is the cardinality of an acquisition: one sample on demand, a
// fixed count, or samples until externally stopped.
type TimingMode int

// Names for the possible values of TimingMode
const (
	SingleShot TimingMode = iota
	Finite
	Continuous
)

func (m TimingMode) String() string {
	switch m {
	case SingleShot:
		return "single-shot"
	case Finite:
		return "finite"
	case Continuous:
		return "continuous"
	}
	return fmt.Sprintf("TimingMode(%d)", int(m))
}

// TimingSpec configures the sample clock of a task.
type TimingSpec struct {
	Mode        TimingMode
	Rate        float64 // samples per second; ignored for SingleShot
	SampleCount int     // Finite mode only: samples per channel
	BufferDepth int     // driver buffer in samples per channel; 0 means driver default
}

// PulseSpec configures the implicit timing of a counter output task.
type PulseSpec struct {
	Period    time.Duration
	DutyCycle float64
}

// TaskConfig is everything needed to create one hardware task: the channel
// bindings plus one timing configuration.
type TaskConfig struct {
	Name     string
	Channels []ChannelSpec
	Timing   TimingSpec
	Pulse    *PulseSpec // counter tasks only
}

// Validate checks that the channel roles and range/grouping are compatible
// with the requested timing before any hardware is touched.
func (cfg *TaskConfig) Validate() error {
	if len(cfg.Channels) == 0 {
		return configErrorf("task %q has no channel bindings", cfg.Name)
	}

	inputs, outputs, counters := 0, 0, 0
	for _, ch := range cfg.Channels {
		if strings.TrimSpace(ch.Physical) == "" {
			return configErrorf("task %q has a channel with an empty physical name", cfg.Name)
		}
		switch {
		case ch.Role.analog():
			if ch.Range.Max <= ch.Range.Min {
				return configErrorf("channel %q: analog range [%g, %g] is empty",
					ch.Physical, ch.Range.Min, ch.Range.Max)
			}
			if ch.Grouping != OneChannelPerLine {
				return configErrorf("channel %q: line grouping is not valid on an analog channel",
					ch.Physical)
			}
		case ch.Role.digital():
			if ch.Range != (VoltageRange{}) {
				return configErrorf("channel %q: voltage range is not valid on a digital line",
					ch.Physical)
			}
		}
		switch {
		case ch.Role == CounterOut:
			counters++
		case ch.Role.input():
			inputs++
		default:
			outputs++
		}
	}
	if inputs > 0 && outputs > 0 {
		return configErrorf("task %q mixes input and output roles; one direction per task", cfg.Name)
	}

	if counters > 0 {
		if counters != len(cfg.Channels) {
			return configErrorf("task %q mixes counter and non-counter channels", cfg.Name)
		}
		if cfg.Pulse == nil {
			return configErrorf("counter task %q requires a PulseSpec", cfg.Name)
		}
		if cfg.Timing.Rate != 0 {
			// counters run on implicit timing, never a sample clock
			return configErrorf("counter task %q cannot use a sample clock", cfg.Name)
		}
		if cfg.Pulse.Period <= 0 {
			return configErrorf("counter task %q: pulse period %v is not positive",
				cfg.Name, cfg.Pulse.Period)
		}
		if cfg.Pulse.DutyCycle <= 0 || cfg.Pulse.DutyCycle >= 1 {
			return configErrorf("counter task %q: duty cycle %g outside (0, 1)",
				cfg.Name, cfg.Pulse.DutyCycle)
		}
		return nil
	}

	if cfg.Pulse != nil {
		return configErrorf("task %q has a PulseSpec but no counter channel", cfg.Name)
	}
	switch cfg.Timing.Mode {
	case SingleShot:
		if cfg.Timing.SampleCount != 0 {
			return configErrorf("task %q: single-shot timing cannot carry a sample count", cfg.Name)
		}
	case Finite:
		if cfg.Timing.SampleCount <= 0 {
			return configErrorf("task %q: finite timing requires a positive sample count", cfg.Name)
		}
		fallthrough
	case Continuous:
		if cfg.Timing.Rate <= 0 {
			return configErrorf("task %q: %v timing requires a positive sample rate",
				cfg.Name, cfg.Timing.Mode)
		}
	}
	return nil
}

// DeviceInfo identifies one discoverable device and its physical channels.
type DeviceInfo struct {
	Name     string
	Channels []string
}

// Driver is the capability set this module consumes from a vendor DAQ stack.
type Driver interface {
	// Devices enumerates the connected devices. Devices are discovered, never
	// created, by calling code.
	Devices() ([]DeviceInfo, error)

	// CreateTask claims the configured channels exclusively and returns a task
	// handle in its idle (not yet started) state. It fails with
	// HardwareUnavailableError if a channel is missing or already claimed.
	CreateTask(cfg TaskConfig) (DriverTask, error)
}

// DriverTask is an opaque vendor handle to one configured hardware task.
type DriverTask interface {
	Start() error
	Stop() error

	// Clear releases the hardware resources. The handle is invalid afterward
	// and its channels may be claimed by a new task.
	Clear() error

	// Read blocks until count samples per channel are available or the timeout
	// expires.
	Read(count int, timeout time.Duration) ([]float64, error)

	// Write blocks until the samples are consumed or the timeout expires, and
	// reports how many were consumed.
	Write(samples []float64, autostart bool, timeout time.Duration) (int, error)
}
