package queue

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"valumatch/server/internal/location"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// Signal is one reinforcement observation: a search subject and the
// micro-locations of the comparables it accepted. Dropping a signal loses a
// little future search quality and nothing else.
type Signal struct {
	Subject     location.MicroLocation
	Comparables []location.MicroLocation

	// Streets seen inside the subject's area during this search, recorded as
	// discovered metadata only.
	Streets []string
}

// SignalQueue is an in-memory queue decoupling searches from the learning
// store. Push never blocks a search.
type SignalQueue struct {
	items    chan Signal
	done     chan struct{}
	maxSize  int
	closed   bool
	mu       sync.RWMutex
	logger   *logrus.Logger
	handlers []func(Signal) error
}

// NewSignalQueue creates a new signal queue with the specified buffer size.
func NewSignalQueue(bufferSize int, logger *logrus.Logger) *SignalQueue {
	return &SignalQueue{
		items:    make(chan Signal, bufferSize),
		done:     make(chan struct{}),
		maxSize:  bufferSize,
		logger:   logger,
		handlers: make([]func(Signal) error, 0),
	}
}

// Push adds a reinforcement signal to the queue. Non-blocking: a full queue
// sheds the signal rather than stalling the search that produced it. The
// lock is held across the send so Close cannot close the channel under a
// push in flight; the send never blocks, so the hold is momentary.
func (q *SignalQueue) Push(signal Signal) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- signal:
		q.logger.WithField("subject", signal.Subject.Key()).Debug("Queued reinforcement signal")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds a handler function that will be called for each signal.
func (q *SignalQueue) Subscribe(handler func(Signal) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start begins processing items in the queue.
func (q *SignalQueue) Start() {
	go q.process()
}

func (q *SignalQueue) process() {
	for {
		select {
		case <-q.done:
			return
		case signal := <-q.items:
			q.dispatch(signal)
		}
	}
}

func (q *SignalQueue) dispatch(signal Signal) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(signal); err != nil {
			q.logger.WithError(err).Error("Handler failed to process reinforcement signal")
		}
	}
}

// Close stops the queue and prevents new items from being added.
func (q *SignalQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.done)
	close(q.items)
	return nil
}

// Len returns the current number of signals in the queue.
func (q *SignalQueue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed.
func (q *SignalQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
