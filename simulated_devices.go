package labdaq

// SimDriver synthesizes loopback DAQ devices in software: the last voltage
// written to a device's analog output is read back (plus optional noise) on
// its analog inputs, and digital lines echo the last written line state. It
// is the driver the demo programs and the tests run against, so no physical
// hardware is needed to exercise the task lifecycle, the acquisition loop, or
// the sinks.

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// SimDriver implements Driver for a set of simulated loopback devices.
type SimDriver struct {
	Noise float64 // standard deviation of readback noise, volts

	devices   []DeviceInfo
	claims    map[string]string        // physical channel -> claiming task name
	lastValue map[string]float64       // device name -> last written output value
	failReads map[string]int           // physical channel -> 1-based read number that faults
	readDelay map[string]time.Duration // physical channel -> simulated conversion delay
	rng       *rand.Rand
	lock      sync.Mutex
}

// NewSimDriver creates a driver exposing ndevices simulated devices named
// SimDev1, SimDev2, ... with the channel complement of a small USB DAQ box.
func NewSimDriver(ndevices int) *SimDriver {
	d := &SimDriver{
		claims:    make(map[string]string),
		lastValue: make(map[string]float64),
		failReads: make(map[string]int),
		readDelay: make(map[string]time.Duration),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i := 1; i <= ndevices; i++ {
		name := fmt.Sprintf("SimDev%d", i)
		var channels []string
		for j := 0; j < 4; j++ {
			channels = append(channels, fmt.Sprintf("%s/ai%d", name, j))
		}
		for j := 0; j < 2; j++ {
			channels = append(channels, fmt.Sprintf("%s/ao%d", name, j))
		}
		channels = append(channels, name+"/port0/line0:7", name+"/ctr0")
		d.devices = append(d.devices, DeviceInfo{Name: name, Channels: channels})
	}
	return d
}

// Devices enumerates the simulated devices.
func (d *SimDriver) Devices() ([]DeviceInfo, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	out := make([]DeviceInfo, len(d.devices))
	copy(out, d.devices)
	return out, nil
}

// FailReadsAfter arranges for reads on the given physical channel to report a
// hardware fault starting with read number n (1-based). Pass n=0 to clear.
func (d *SimDriver) FailReadsAfter(physical string, n int) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if n == 0 {
		delete(d.failReads, physical)
		return
	}
	d.failReads[physical] = n
}

// SetReadDelay simulates a slow conversion on the given physical channel, so
// reads with a shorter timeout fail with TimeoutError.
func (d *SimDriver) SetReadDelay(physical string, delay time.Duration) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.readDelay[physical] = delay
}

func (d *SimDriver) knowsChannel(physical string) bool {
	dev := deviceOf(physical)
	for _, info := range d.devices {
		if info.Name != dev {
			continue
		}
		for _, ch := range info.Channels {
			if ch == physical {
				return true
			}
		}
	}
	return false
}

func deviceOf(physical string) string {
	if i := strings.IndexByte(physical, '/'); i >= 0 {
		return physical[:i]
	}
	return physical
}

// CreateTask claims the configured channels and returns an idle simTask. The
// claim is exclusive: a second task for any of the same channels fails with
// HardwareUnavailableError until the first is cleared.
func (d *SimDriver) CreateTask(cfg TaskConfig) (DriverTask, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	for _, ch := range cfg.Channels {
		if !d.knowsChannel(ch.Physical) {
			return nil, &HardwareUnavailableError{Channel: ch.Physical,
				Detail: "no such device or channel"}
		}
		if owner, claimed := d.claims[ch.Physical]; claimed {
			return nil, &HardwareUnavailableError{Channel: ch.Physical,
				Detail: fmt.Sprintf("already claimed by task %q", owner)}
		}
	}
	for _, ch := range cfg.Channels {
		d.claims[ch.Physical] = cfg.Name
	}
	return &simTask{drv: d, cfg: cfg}, nil
}

// simTask is the DriverTask for simulated devices.
type simTask struct {
	drv *SimDriver
	cfg TaskConfig

	started bool
	cleared bool
	nreads  int
	nclears int // how many times Clear has done real work
	lock    sync.Mutex
}

func (t *simTask) Start() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.cleared {
		return fmt.Errorf("task %q was cleared", t.cfg.Name)
	}
	t.started = true
	return nil
}

func (t *simTask) Stop() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.cleared {
		return fmt.Errorf("task %q was cleared", t.cfg.Name)
	}
	t.started = false
	return nil
}

func (t *simTask) Clear() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.cleared {
		return nil
	}
	t.cleared = true
	t.started = false
	t.nclears++

	t.drv.lock.Lock()
	defer t.drv.lock.Unlock()
	for _, ch := range t.cfg.Channels {
		delete(t.drv.claims, ch.Physical)
	}
	return nil
}

// Read produces count loopback samples per input channel, channel-major.
func (t *simTask) Read(count int, timeout time.Duration) ([]float64, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.cleared {
		return nil, fmt.Errorf("task %q was cleared", t.cfg.Name)
	}
	if !t.started {
		return nil, fmt.Errorf("task %q is not started", t.cfg.Name)
	}
	if count <= 0 {
		return nil, fmt.Errorf("read count %d is not positive", count)
	}
	t.nreads++

	t.drv.lock.Lock()
	defer t.drv.lock.Unlock()
	samples := make([]float64, 0, count*len(t.cfg.Channels))
	for _, ch := range t.cfg.Channels {
		if !ch.Role.input() {
			return nil, fmt.Errorf("channel %q is not an input", ch.Physical)
		}
		if delay, ok := t.drv.readDelay[ch.Physical]; ok && delay > timeout {
			return nil, &TimeoutError{Op: "read", Channel: ch.Physical, Timeout: timeout}
		}
		if failAt, ok := t.drv.failReads[ch.Physical]; ok && t.nreads >= failAt {
			return nil, fmt.Errorf("simulated converter fault on %q", ch.Physical)
		}
		value := t.drv.lastValue[deviceOf(ch.Physical)]
		for i := 0; i < count; i++ {
			v := value
			if ch.Role == AnalogIn && t.drv.Noise > 0 {
				v += t.drv.Noise * t.drv.rng.NormFloat64()
			}
			if ch.Role == DigitalIn {
				v = coerceLine(v)
			}
			samples = append(samples, clampRange(v, ch))
		}
	}
	return samples, nil
}

// Write stores the last sample as the device's loopback value.
func (t *simTask) Write(samples []float64, autostart bool, timeout time.Duration) (int, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.cleared {
		return 0, fmt.Errorf("task %q was cleared", t.cfg.Name)
	}
	if !t.started && !autostart {
		return 0, fmt.Errorf("task %q is not started", t.cfg.Name)
	}
	if len(samples) == 0 {
		return 0, nil
	}

	t.drv.lock.Lock()
	defer t.drv.lock.Unlock()
	for _, ch := range t.cfg.Channels {
		if ch.Role.input() {
			return 0, fmt.Errorf("channel %q is not an output", ch.Physical)
		}
		v := samples[len(samples)-1]
		if ch.Role == DigitalOut {
			v = coerceLine(v)
		}
		t.drv.lastValue[deviceOf(ch.Physical)] = v
	}
	return len(samples), nil
}

func coerceLine(v float64) float64 {
	if v != 0 {
		return 1
	}
	return 0
}

func clampRange(v float64, ch ChannelSpec) float64 {
	if !ch.Role.analog() {
		return v
	}
	if v < ch.Range.Min {
		return ch.Range.Min
	}
	if v > ch.Range.Max {
		return ch.Range.Max
	}
	return v
}
