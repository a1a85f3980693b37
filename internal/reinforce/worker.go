package reinforce

import (
	"os"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"valumatch/server/internal/queue"
	"valumatch/server/internal/relationship"
)

// Worker drains reinforcement signals from the queue into the relationship
// store on a bounded goroutine pool. Everything here is fire-and-forget:
// failures are logged and dropped, never surfaced to a search.
type Worker struct {
	store  *relationship.Store
	queue  *queue.SignalQueue
	pool   *ants.Pool
	logger *logrus.Logger
}

func NewWorker(store *relationship.Store, q *queue.SignalQueue, poolSize int, logger *logrus.Logger) (*Worker, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}

	return &Worker{store: store, queue: q, pool: pool, logger: logger}, nil
}

// Start subscribes the worker to the queue and begins consuming.
func (w *Worker) Start() {
	w.queue.Subscribe(func(signal queue.Signal) error {
		return w.submit(signal)
	})
	w.queue.Start()
}

func (w *Worker) submit(signal queue.Signal) error {
	err := w.pool.Submit(func() {
		if err := w.store.Reinforce(signal.Subject, signal.Comparables); err != nil {
			w.logger.WithError(err).WithField("subject", signal.Subject.Key()).
				Error("Failed to reinforce relationships")
			return
		}
		for _, street := range signal.Streets {
			if err := w.store.Observe(signal.Subject, "", street); err != nil {
				w.logger.WithError(err).Debug("Failed to record discovered street")
			}
		}
	})
	if err != nil {
		// Pool saturated: shed the signal, learning catches up next search.
		w.logger.WithError(err).Debug("Dropped reinforcement signal")
	}
	return nil
}

// Stop releases the pool. Queued signals that have not started are lost,
// which the reinforcement contract permits.
func (w *Worker) Stop() {
	w.pool.Release()
}
