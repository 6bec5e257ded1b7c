package labdaq

// The error taxonomy for acquisition runs. Configuration problems are caught
// before any hardware is touched; hardware faults and timeouts arise during a
// run and abort it; sink failures are isolated per sink and never unwind
// already-acquired data.

import (
	"errors"
	"fmt"
	"time"
)

// ConfigurationError reports an invalid channel/timing combination.
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Detail
}

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Detail: fmt.Sprintf(format, args...)}
}

// HardwareUnavailableError reports a device or channel that is missing or
// already claimed by another task.
type HardwareUnavailableError struct {
	Channel string
	Detail  string
}

func (e *HardwareUnavailableError) Error() string {
	return fmt.Sprintf("hardware unavailable on %q: %s", e.Channel, e.Detail)
}

// TimeoutError reports a blocking read or write that did not complete within
// its bound.
type TimeoutError struct {
	Op      string
	Channel string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s on %q timed out after %v", e.Op, e.Channel, e.Timeout)
}

// HardwareFaultError wraps a driver-reported error raised during an otherwise
// valid operation.
type HardwareFaultError struct {
	Op      string
	Channel string
	Err     error
}

func (e *HardwareFaultError) Error() string {
	return fmt.Sprintf("hardware fault during %s on %q: %v", e.Op, e.Channel, e.Err)
}

func (e *HardwareFaultError) Unwrap() error { return e.Err }

// SinkError wraps a persistence failure (file, database, or remote store).
type SinkError struct {
	Sink string
	Op   string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %q failed during %s: %v", e.Sink, e.Op, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

func sinkErrorf(sink, op string, format string, args ...interface{}) error {
	return &SinkError{Sink: sink, Op: op, Err: fmt.Errorf(format, args...)}
}

// classifyDriverError passes through errors already in the taxonomy and wraps
// anything else the driver reported as a HardwareFaultError.
func classifyDriverError(op, channel string, err error) error {
	if err == nil {
		return nil
	}
	var timeout *TimeoutError
	var unavailable *HardwareUnavailableError
	var fault *HardwareFaultError
	var config *ConfigurationError
	if errors.As(err, &timeout) || errors.As(err, &unavailable) ||
		errors.As(err, &fault) || errors.As(err, &config) {
		return err
	}
	return &HardwareFaultError{Op: op, Channel: channel, Err: err}
}
