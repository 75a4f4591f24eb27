package thread

import (
	"context"
	"sync"
	"time"

	"guardline/internal/general/logger"
	"guardline/internal/ports"
)

// Polling intervals. The reconciler tightens when the push channel is down
// so the thread still converges quickly.
const (
	PollInterval      = 3 * time.Second
	TightPollInterval = 1 * time.Second
)

// Reconciler is the fallback/validator channel: a periodic authoritative
// re-fetch that guarantees eventual consistency independent of push
// delivery. Transport errors are non-fatal and only logged; the next tick
// retries.
type Reconciler struct {
	bookingID string
	store     ports.MessageStore
	cache     *Cache
	logger    *logger.Logger

	mu       sync.Mutex
	interval time.Duration
	wake     chan struct{} // signals an interval change

	stop    context.CancelFunc
	stopped chan struct{}
}

// NewReconciler constructs a reconciler for one booking.
func NewReconciler(bookingID string, store ports.MessageStore, cache *Cache, log *logger.Logger) *Reconciler {
	return &Reconciler{
		bookingID: bookingID,
		store:     store,
		cache:     cache,
		logger:    log,
		interval:  PollInterval,
		wake:      make(chan struct{}, 1),
	}
}

// Tighten switches to the aggressive interval (push channel down).
func (r *Reconciler) Tighten() {
	r.setInterval(TightPollInterval)
}

// Relax returns to the normal interval (push channel healthy).
func (r *Reconciler) Relax() {
	r.setInterval(PollInterval)
}

func (r *Reconciler) setInterval(d time.Duration) {
	r.mu.Lock()
	changed := r.interval != d
	r.interval = d
	r.mu.Unlock()

	if changed {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
}

func (r *Reconciler) currentInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// Start launches the polling loop. One immediate pass runs before the first
// sleep so a freshly opened thread shows history without waiting a tick.
func (r *Reconciler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.stop = cancel
	r.stopped = make(chan struct{})

	go func() {
		defer close(r.stopped)

		r.reconcileOnce(runCtx)

		timer := time.NewTimer(r.currentInterval())
		defer timer.Stop()

		for {
			select {
			case <-runCtx.Done():
				return

			case <-r.wake:
				// interval changed; re-arm the timer
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(r.currentInterval())

			case <-timer.C:
				r.reconcileOnce(runCtx)
				timer.Reset(r.currentInterval())
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (r *Reconciler) Stop() {
	if r.stop == nil {
		return
	}
	r.stop()
	<-r.stopped
}

// reconcileOnce fetches the authoritative set and merges it into the cache.
func (r *Reconciler) reconcileOnce(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msgs, err := r.store.ListMessages(fetchCtx, r.bookingID, nil)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error(ctx, "thread_reconcile_failed",
			"Authoritative re-fetch failed; will retry next tick", err,
			map[string]any{"booking_id": r.bookingID})
		return
	}

	r.cache.Reconcile(ctx, msgs)
}
