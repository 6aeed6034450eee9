package revizto

import (
	"sync"
	"time"

	"github.com/stgm/visitreport/internal/logging"
)

// Refresher keeps the session token fresh in the background so report runs
// rarely pay for a refresh.
type Refresher struct {
	session  *Session
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewRefresher creates a refresher that checks the token every interval.
func NewRefresher(session *Session, interval time.Duration) *Refresher {
	return &Refresher{
		session:  session,
		interval: interval,
	}
}

// Start launches the refresh loop. It returns immediately.
func (r *Refresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})

	logging.Info("token refresher starting", "interval", r.interval)
	r.wg.Add(1)
	go r.loop(r.stopChan)
}

// Stop ends the loop and waits for it to exit.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	r.mu.Unlock()

	r.wg.Wait()
	logging.Info("token refresher stopped")
}

func (r *Refresher) loop(stop <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.refreshIfNeeded()
		case <-stop:
			return
		}
	}
}

// refreshIfNeeded refreshes when the token would expire before the next tick.
func (r *Refresher) refreshIfNeeded() {
	if !r.session.ExpiresWithin(2 * r.interval) {
		return
	}
	if _, err := r.session.Refresh(); err != nil {
		logging.Warn("background token refresh failed", "error", err)
	}
}
