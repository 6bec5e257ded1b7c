package labdaq

// Contains the client updater, which publishes JSON-encoded messages
// giving the latest labdaq state on the status port.

import (
	"encoding/json"
	"fmt"

	zmq "github.com/pebbe/zmq4"
)

// ClientUpdate carries the messages to be published on the status port.
type ClientUpdate struct {
	tag   string
	state interface{}
}

// RunClientUpdater forwards any message from its input channel to the ZMQ
// publisher socket, so clients can subscribe to the state they need. Runs
// until abort closes.
func RunClientUpdater(messages <-chan ClientUpdate, portstatus int, abort <-chan struct{}) {
	pubSocket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		ProblemLogger.Printf("could not create status publisher socket: %v", err)
		return
	}
	defer pubSocket.Close()
	hostname := fmt.Sprintf("tcp://*:%d", portstatus)
	if err = pubSocket.Bind(hostname); err != nil {
		ProblemLogger.Printf("could not bind status publisher to %s: %v", hostname, err)
		return
	}

	for {
		select {
		case <-abort:
			return
		case update := <-messages:
			message, err := json.Marshal(update.state)
			if err != nil {
				ProblemLogger.Printf("could not marshal update %q: %v", update.tag, err)
				continue
			}
			if _, err := pubSocket.SendMessage(update.tag, string(message)); err != nil {
				ProblemLogger.Printf("could not publish update %q: %v", update.tag, err)
			}
		}
	}
}
