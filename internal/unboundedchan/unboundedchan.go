// Package unboundedchan offers a queue with channel endpoints and no fixed
// capacity, so producers never block on a slow consumer.
package unboundedchan

// UnboundedChannel carries values from In to Out through an unbounded
// in-memory queue. Prefer small or pointer-sized T: everything queued is held
// until the consumer catches up.
type UnboundedChannel[T any] struct {
	in    chan T
	out   chan T
	queue []T
}

// NewUnboundedChannel creates the queue and starts its transfer goroutine.
// Closing the In channel drains the queue to Out, then closes Out.
func NewUnboundedChannel[T any]() *UnboundedChannel[T] {
	uc := &UnboundedChannel[T]{
		in:    make(chan T),
		out:   make(chan T),
		queue: make([]T, 0),
	}
	go uc.run()
	return uc
}

func (uc *UnboundedChannel[T]) run() {
	for {
		if len(uc.queue) == 0 {
			val, ok := <-uc.in
			if !ok {
				close(uc.out)
				return
			}
			uc.queue = append(uc.queue, val)
			continue
		}
		select {
		case uc.out <- uc.queue[0]:
			uc.queue = uc.queue[1:]
		case val, ok := <-uc.in:
			if !ok {
				for _, item := range uc.queue {
					uc.out <- item
				}
				close(uc.out)
				return
			}
			uc.queue = append(uc.queue, val)
		}
	}
}

// In returns the channel producers send on.
func (uc *UnboundedChannel[T]) In() chan<- T {
	return uc.in
}

// Out returns the channel consumers receive on.
func (uc *UnboundedChannel[T]) Out() <-chan T {
	return uc.out
}
