package labdaq

import (
	"fmt"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// AcquisitionControl is the sub-server that handles configuration and
// operation of labdaq acquisition runs.
type AcquisitionControl struct {
	driver Driver
	runner *Runner
	runCfg RunConfig

	status        ServerStatus
	clientUpdates chan<- ClientUpdate
	lock          sync.Mutex // guards runner, runCfg, status
}

// ServerStatus is the status that AcquisitionControl reports to clients.
type ServerStatus struct {
	Running       bool
	RunID         string
	OutputChannel string
	InputChannel  string
	Iterations    int
	TicksDone     int
}

// NewAcquisitionControl prepares the control server against the given driver.
func NewAcquisitionControl(driver Driver, updates chan<- ClientUpdate) *AcquisitionControl {
	return &AcquisitionControl{driver: driver, clientUpdates: updates}
}

// Configure stores the run configuration used by subsequent Start calls and
// persists it to the config file, when one is in use.
func (s *AcquisitionControl) Configure(args *RunConfig, reply *bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.status.Running {
		return fmt.Errorf("cannot configure while a run is active (call Stop)")
	}
	log.Printf("Configure: out=%s in=%s interval=%v iterations=%d\n",
		args.OutputChannel, args.InputChannel, args.Interval, args.Iterations)
	s.runCfg = *args
	viper.Set("run", args)
	if viper.ConfigFileUsed() != "" {
		if err := viper.WriteConfig(); err != nil {
			ProblemLogger.Printf("could not save run configuration: %v", err)
		}
	}
	s.clientUpdates <- ClientUpdate{"RUNCONFIG", args}
	*reply = true
	return nil
}

// Devices reports the hardware the driver can see.
func (s *AcquisitionControl) Devices(dummy *string, reply *[]DeviceInfo) error {
	devices, err := s.driver.Devices()
	if err != nil {
		return err
	}
	*reply = devices
	return nil
}

// Start launches a run with the stored configuration. The run proceeds on its
// own goroutine; poll SendAllStatus or subscribe to the status port to watch
// progress.
func (s *AcquisitionControl) Start(dummy *string, reply *bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.status.Running {
		return fmt.Errorf("a run is already active (call Stop)")
	}

	runner := NewRunner(s.driver, s.runCfg)
	s.runner = runner
	s.status.Running = true
	s.status.OutputChannel = s.runCfg.OutputChannel
	s.status.InputChannel = s.runCfg.InputChannel
	s.status.Iterations = s.runCfg.Iterations
	s.status.TicksDone = 0
	log.Printf("Starting acquisition run\n")

	go func() {
		summary, err := runner.Run()
		s.lock.Lock()
		s.status.Running = false
		s.status.TicksDone = runner.TicksDone()
		s.lock.Unlock()
		if err != nil {
			ProblemLogger.Printf("acquisition run failed: %v", err)
		}
		s.clientUpdates <- ClientUpdate{"SUMMARY", summary}
		s.broadcastUpdate()
	}()
	*reply = true
	return nil
}

// Stop requests cancellation of the active run.
func (s *AcquisitionControl) Stop(dummy *string, reply *bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.runner == nil || !s.status.Running {
		return fmt.Errorf("no run is active")
	}
	log.Printf("Stopping acquisition run\n")
	s.runner.Stop()
	*reply = true
	return nil
}

func (s *AcquisitionControl) broadcastUpdate() {
	s.lock.Lock()
	if s.runner != nil && s.status.Running {
		s.status.TicksDone = s.runner.TicksDone()
	}
	status := s.status
	s.lock.Unlock()
	s.clientUpdates <- ClientUpdate{"STATUS", status}
}

// SendAllStatus causes a broadcast to clients containing all broadcastable
// status info.
func (s *AcquisitionControl) SendAllStatus(dummy *string, reply *bool) error {
	s.broadcastUpdate()
	s.clientUpdates <- ClientUpdate{"SENDALL", 0}
	*reply = true
	return nil
}

// RunRPCServer sets up and runs a permanent JSON-RPC server.
func RunRPCServer(driver Driver, messageChan chan<- ClientUpdate, portrpc int, abort <-chan struct{}) {
	control := NewAcquisitionControl(driver, messageChan)

	// Load the stored run configuration.
	var okay bool
	var rc RunConfig
	log.Printf("labdaq is using config file %s\n", viper.ConfigFileUsed())
	if err := viper.UnmarshalKey("run", &rc); err == nil && (rc.OutputChannel != "" || rc.InputChannel != "") {
		control.Configure(&rc, &okay)
	}

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-abort:
				return
			case <-ticker.C:
				control.broadcastUpdate()
			}
		}
	}()

	// Now launch the connection handler and accept connections.
	server := rpc.NewServer()
	server.Register(control)
	server.HandleHTTP(rpc.DefaultRPCPath, rpc.DefaultDebugPath)
	port := fmt.Sprintf(":%d", portrpc)
	listener, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatal("listen error:", err)
	}
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Fatal("accept error: " + err.Error())
		}
		log.Printf("new connection established\n")
		go server.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}
