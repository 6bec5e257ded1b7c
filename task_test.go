package labdaq

import (
	"errors"
	"testing"
	"time"
)

func aiConfig(name, physical string) TaskConfig {
	return TaskConfig{
		Name: name,
		Channels: []ChannelSpec{{
			Physical: physical,
			Role:     AnalogIn,
			Range:    VoltageRange{Min: 0, Max: 5},
		}},
		Timing: TimingSpec{Mode: Continuous, Rate: 1000},
	}
}

func aoConfig(name, physical string) TaskConfig {
	return TaskConfig{
		Name: name,
		Channels: []ChannelSpec{{
			Physical: physical,
			Role:     AnalogOut,
			Range:    VoltageRange{Min: 0, Max: 5},
		}},
		Timing: TimingSpec{Mode: SingleShot},
	}
}

func TestTaskLifecycle(t *testing.T) {
	drv := NewSimDriver(1)
	task, err := Create(drv, aiConfig("lifecycle", "SimDev1/ai0"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if s := task.State(); s != Idle {
		t.Errorf("state after Create is %v, want Idle", s)
	}

	if _, err := task.Read(1, time.Second); err == nil {
		t.Errorf("Read on an Idle task should fail")
	}
	if err := task.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s := task.State(); s != Running {
		t.Errorf("state after Start is %v, want Running", s)
	}
	if err := task.Start(); err == nil {
		t.Errorf("second Start should fail")
	}

	buffer, err := task.Read(1, time.Second)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(buffer.Samples) != 1 {
		t.Errorf("Read returned %d samples, want 1", len(buffer.Samples))
	}

	if err := task.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s := task.State(); s != Stopped {
		t.Errorf("state after Stop is %v, want Stopped", s)
	}
	if _, err := task.Read(1, time.Second); err == nil {
		t.Errorf("Read on a Stopped task should fail")
	}
	if err := task.Stop(); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}

	if err := task.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if s := task.State(); s != Released {
		t.Errorf("state after Release is %v, want Released", s)
	}
	if err := task.Release(); err != nil {
		t.Errorf("second Release should be a no-op, got %v", err)
	}
}

func TestChannelClaiming(t *testing.T) {
	drv := NewSimDriver(1)
	first, err := Create(drv, aiConfig("first", "SimDev1/ai0"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = Create(drv, aiConfig("second", "SimDev1/ai0"))
	if err == nil {
		t.Fatalf("second Create on claimed channel should fail")
	}
	var unavailable *HardwareUnavailableError
	if !errors.As(err, &unavailable) {
		t.Errorf("second Create error is %T, want *HardwareUnavailableError", err)
	}

	// A different channel of the same device is still free.
	other, err := Create(drv, aiConfig("other", "SimDev1/ai1"))
	if err != nil {
		t.Fatalf("Create on unclaimed channel failed: %v", err)
	}
	other.Release()

	// Releasing frees the channel for a new task.
	if err := first.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	again, err := Create(drv, aiConfig("again", "SimDev1/ai0"))
	if err != nil {
		t.Fatalf("Create after Release failed: %v", err)
	}
	again.Release()
}

func TestCreateUnknownChannel(t *testing.T) {
	drv := NewSimDriver(1)
	cases := []string{"SimDev1/ai99", "SimDev9/ai0", "bogus"}
	for _, physical := range cases {
		_, err := Create(drv, aiConfig("unknown", physical))
		var unavailable *HardwareUnavailableError
		if !errors.As(err, &unavailable) {
			t.Errorf("Create(%q) error is %v, want *HardwareUnavailableError", physical, err)
		}
	}
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	drv := NewSimDriver(1)
	bad := []TaskConfig{
		{Name: "empty"},
		{ // analog without a range
			Name:     "norange",
			Channels: []ChannelSpec{{Physical: "SimDev1/ai0", Role: AnalogIn}},
			Timing:   TimingSpec{Mode: Continuous, Rate: 1000},
		},
		{ // analog with a line grouping
			Name: "anagroup",
			Channels: []ChannelSpec{{
				Physical: "SimDev1/ai0",
				Role:     AnalogIn,
				Range:    VoltageRange{Min: 0, Max: 5},
				Grouping: OneChannelAllLines,
			}},
			Timing: TimingSpec{Mode: Continuous, Rate: 1000},
		},
		{ // digital with a range
			Name: "digirange",
			Channels: []ChannelSpec{{
				Physical: "SimDev1/port0/line0:7",
				Role:     DigitalIn,
				Range:    VoltageRange{Min: 0, Max: 5},
			}},
			Timing: TimingSpec{Mode: SingleShot},
		},
		{ // mixed directions
			Name: "mixed",
			Channels: []ChannelSpec{
				{Physical: "SimDev1/ai0", Role: AnalogIn, Range: VoltageRange{Min: 0, Max: 5}},
				{Physical: "SimDev1/ao0", Role: AnalogOut, Range: VoltageRange{Min: 0, Max: 5}},
			},
			Timing: TimingSpec{Mode: Continuous, Rate: 1000},
		},
		{ // counter with a sample clock
			Name:     "ctrclock",
			Channels: []ChannelSpec{{Physical: "SimDev1/ctr0", Role: CounterOut}},
			Timing:   TimingSpec{Mode: Continuous, Rate: 1000},
			Pulse:    &PulseSpec{Period: time.Millisecond, DutyCycle: 0.5},
		},
		{ // counter without a PulseSpec
			Name:     "ctrnopulse",
			Channels: []ChannelSpec{{Physical: "SimDev1/ctr0", Role: CounterOut}},
		},
		{ // duty cycle out of (0, 1)
			Name:     "ctrduty",
			Channels: []ChannelSpec{{Physical: "SimDev1/ctr0", Role: CounterOut}},
			Pulse:    &PulseSpec{Period: time.Millisecond, DutyCycle: 1.0},
		},
		{ // finite without a sample count
			Name:     "finite",
			Channels: []ChannelSpec{{Physical: "SimDev1/ai0", Role: AnalogIn, Range: VoltageRange{Min: 0, Max: 5}}},
			Timing:   TimingSpec{Mode: Finite, Rate: 1000},
		},
		{ // continuous without a rate
			Name:     "norate",
			Channels: []ChannelSpec{{Physical: "SimDev1/ai0", Role: AnalogIn, Range: VoltageRange{Min: 0, Max: 5}}},
			Timing:   TimingSpec{Mode: Continuous},
		},
		{ // single-shot with a sample count
			Name:     "sscount",
			Channels: []ChannelSpec{{Physical: "SimDev1/ai0", Role: AnalogIn, Range: VoltageRange{Min: 0, Max: 5}}},
			Timing:   TimingSpec{Mode: SingleShot, SampleCount: 10},
		},
	}
	for _, cfg := range bad {
		_, err := Create(drv, cfg)
		var config *ConfigurationError
		if !errors.As(err, &config) {
			t.Errorf("Create(%q) error is %v, want *ConfigurationError", cfg.Name, err)
		}
	}

	// Invalid configurations must not have claimed anything.
	task, err := Create(drv, aiConfig("sound", "SimDev1/ai0"))
	if err != nil {
		t.Fatalf("Create after invalid configs failed: %v", err)
	}
	task.Release()
}

func TestCounterTaskConfig(t *testing.T) {
	drv := NewSimDriver(1)
	cfg := TaskConfig{
		Name:     "pulses",
		Channels: []ChannelSpec{{Physical: "SimDev1/ctr0", Role: CounterOut}},
		Pulse:    &PulseSpec{Period: 10 * time.Millisecond, DutyCycle: 0.25},
	}
	task, err := Create(drv, cfg)
	if err != nil {
		t.Fatalf("Create counter task failed: %v", err)
	}
	if err := task.Start(); err != nil {
		t.Errorf("Start counter task failed: %v", err)
	}
	if err := task.Release(); err != nil {
		t.Errorf("Release counter task failed: %v", err)
	}
}

func TestFaultMovesTaskToErrored(t *testing.T) {
	drv := NewSimDriver(1)
	drv.FailReadsAfter("SimDev1/ai0", 2)
	task, err := Create(drv, aiConfig("faulty", "SimDev1/ai0"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := task.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := task.Read(1, time.Second); err != nil {
		t.Fatalf("first Read should succeed, got %v", err)
	}

	_, err = task.Read(1, time.Second)
	var fault *HardwareFaultError
	if !errors.As(err, &fault) {
		t.Fatalf("second Read error is %v, want *HardwareFaultError", err)
	}
	if s := task.State(); s != Errored {
		t.Errorf("state after fault is %v, want Errored", s)
	}
	if _, err := task.Read(1, time.Second); err == nil {
		t.Errorf("Read on an Errored task should fail")
	}

	// Stop and Release remain valid from Errored.
	if err := task.Stop(); err != nil {
		t.Errorf("Stop on Errored task returned %v", err)
	}
	if err := task.Release(); err != nil {
		t.Errorf("Release on Errored task returned %v", err)
	}

	// Release freed the claim, so the channel is reusable.
	drv.FailReadsAfter("SimDev1/ai0", 0)
	again, err := Create(drv, aiConfig("recovered", "SimDev1/ai0"))
	if err != nil {
		t.Fatalf("Create after fault+Release failed: %v", err)
	}
	again.Release()
}

func TestTimeoutLeavesTaskRunning(t *testing.T) {
	drv := NewSimDriver(1)
	drv.SetReadDelay("SimDev1/ai0", time.Hour)
	task, err := Create(drv, aiConfig("slow", "SimDev1/ai0"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := task.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err = task.Read(1, time.Millisecond)
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("Read error is %v, want *TimeoutError", err)
	}
	if s := task.State(); s != Running {
		t.Errorf("state after timeout is %v, want Running", s)
	}

	// Once the channel speeds up, the same task reads fine.
	drv.SetReadDelay("SimDev1/ai0", 0)
	if _, err := task.Read(1, time.Second); err != nil {
		t.Errorf("Read after clearing delay failed: %v", err)
	}
	task.Release()
}

func TestWithTaskAlwaysReleases(t *testing.T) {
	drv := NewSimDriver(1)
	wantErr := errors.New("body failed")
	err := WithTask(drv, aiConfig("with", "SimDev1/ai0"), func(task *Task) error {
		if err := task.Start(); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("WithTask returned %v, want %v", err, wantErr)
	}

	// The channel must be free again even though fn failed.
	task, err := Create(drv, aiConfig("after", "SimDev1/ai0"))
	if err != nil {
		t.Fatalf("Create after WithTask failed: %v", err)
	}
	task.Release()
}
