package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/logger"
)

const defaultNotifyTimeout = 10 * time.Second

// Async delivers alerts in the background so the ingest path never waits on
// an outside channel. Failures are logged. Close waits for pending
// deliveries before closing the wrapped notifier.
type Async struct {
	next    Notifier
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	pending conc.WaitGroup
}

// NewAsync wraps next. Each delivery is bounded by timeout; zero means ten
// seconds.
func NewAsync(next Notifier, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &Async{
		next:    next,
		timeout: timeout,
		log:     logger.WithComponent("notify"),
	}
}

// Notify schedules delivery and returns immediately. The caller's
// cancellation does not abort a scheduled delivery.
func (a *Async) Notify(ctx context.Context, alert domain.Alert, rule domain.Rule) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.log.Warn().Str("alert_id", alert.ID).Msg("notifier closed; alert not forwarded")
		return nil
	}

	detached := context.WithoutCancel(ctx)
	a.pending.Go(func() {
		ctx, cancel := context.WithTimeout(detached, a.timeout)
		defer cancel()
		if err := a.next.Notify(ctx, alert, rule); err != nil {
			a.log.Error().
				Err(err).
				Str("alert_id", alert.ID).
				Str("device_id", alert.DeviceID).
				Msg("alert notification failed")
		}
	})
	return nil
}

// Wait blocks until every scheduled delivery has finished.
func (a *Async) Wait() {
	if r := a.pending.WaitAndRecover(); r != nil {
		a.log.Error().Str("panic", fmt.Sprint(r.Value)).Msg("alert notification panicked")
	}
}

func (a *Async) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	a.Wait()
	if c, ok := a.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
