package labdaq

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// WritingState monitors the state of data file writing for the active run.
type WritingState struct {
	Active       bool
	BasePath     string
	RunDirectory string
	sync.Mutex
}

// IsActive will return ws.Active, with proper locking
func (ws *WritingState) IsActive() bool {
	ws.Lock()
	defer ws.Unlock()
	return ws.Active
}

// ComputeState will return a property-by-property copy of the WritingState.
func (ws *WritingState) ComputeState() WritingState {
	ws.Lock()
	defer ws.Unlock()
	var copyState WritingState
	copyState.Active = ws.Active
	copyState.BasePath = ws.BasePath
	copyState.RunDirectory = ws.RunDirectory
	return copyState
}

// Start creates this run's directory under basePath and marks writing active.
// It returns the run directory.
func (ws *WritingState) Start(basePath string) (string, error) {
	ws.Lock()
	defer ws.Unlock()
	dir, err := makeRunDirectory(basePath)
	if err != nil {
		return "", err
	}
	ws.Active = true
	ws.BasePath = basePath
	ws.RunDirectory = dir
	return dir, nil
}

// Stop marks writing inactive.
func (ws *WritingState) Stop() {
	ws.Lock()
	defer ws.Unlock()
	ws.Active = false
	ws.RunDirectory = ""
}

// makeRunDirectory creates a directory of the form basepath/20060102/run0000
// where the 4-digit suffix counts separate acquisition runs within the day.
func makeRunDirectory(basepath string) (string, error) {
	if len(basepath) == 0 {
		return "", fmt.Errorf("BasePath is the empty string")
	}
	today := time.Now().Format("20060102")
	todayDir := fmt.Sprintf("%s/%s", basepath, today)
	if err := os.MkdirAll(todayDir, 0755); err != nil {
		return "", err
	}
	for i := 0; i < 10000; i++ {
		thisDir := fmt.Sprintf("%s/run%4.4d", todayDir, i)
		_, err := os.Stat(thisDir)
		if os.IsNotExist(err) {
			if err2 := os.MkdirAll(thisDir, 0755); err2 != nil {
				return "", err2
			}
			return thisDir, nil
		}
	}
	return "", fmt.Errorf("out of 4-digit run numbers for today in %s", todayDir)
}
