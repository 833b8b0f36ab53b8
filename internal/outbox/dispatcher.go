package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dahamkakooza/agrogram-gateway/internal/config"
	"github.com/dahamkakooza/agrogram-gateway/internal/transport"
)

// claimBatch bounds how many deliveries one tick starts.
const claimBatch = 16

// Dispatcher drains the outbox off the request path: it periodically
// claims due messages and attempts delivery through the carrier
// transport. A transport timeout with unknown outcome counts as a
// failure-and-retry.
type Dispatcher struct {
	Store     *Store
	Transport transport.Transport
	Cfg       config.OutboxConfig

	// OnEvent, if set, receives message lifecycle events ("sent",
	// "failed", "exhausted") for the ops stream.
	OnEvent func(kind string, m Message)

	wg sync.WaitGroup
}

func NewDispatcher(store *Store, tr transport.Transport, cfg config.OutboxConfig) *Dispatcher {
	return &Dispatcher{Store: store, Transport: tr, Cfg: cfg}
}

// Run loops until ctx is cancelled, then waits for in-flight attempts to
// finish and flushes the spool. In-flight work is completed or safely
// requeued, never lost.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.Cfg.DispatchInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			if err := d.Store.Save(); err != nil {
				slog.Error("outbox flush on shutdown failed", "error", err)
			}
			slog.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	for _, m := range d.Store.ClaimDue(claimBatch) {
		d.wg.Add(1)
		go func(m *Message) {
			defer d.wg.Done()
			// Detached from the run context: shutdown must not abort a
			// delivery already started, which would burn a retry attempt.
			// The transport's own timeout bounds the send.
			d.attempt(context.WithoutCancel(ctx), m)
		}(m)
	}
}

func (d *Dispatcher) attempt(ctx context.Context, m *Message) {
	err := d.Transport.Send(ctx, m.To, m.Body)
	if err == nil {
		d.Store.MarkSent(m.ID)
		after, _ := d.Store.Get(m.ID)
		slog.Info("outbox delivered", "id", m.ID, "to", m.To, "attempt", after.Attempts)
		d.emit("sent", m.ID)
		return
	}

	d.Store.MarkFailed(m.ID, err.Error(), d.Cfg.MaxAttempts, d.Cfg.BackoffBase.Std(), d.Cfg.BackoffCap.Std())
	after, _ := d.Store.Get(m.ID)
	if after.Status == StatusFailedPermanent {
		slog.Error("outbox retries exhausted", "id", m.ID, "to", m.To, "attempts", after.Attempts, "error", err)
		d.emit("exhausted", m.ID)
		return
	}
	slog.Warn("outbox delivery failed, will retry", "id", m.ID, "to", m.To,
		"attempt", after.Attempts, "nextAttemptAt", after.NextAttemptAt, "error", err)
	d.emit("failed", m.ID)
}

func (d *Dispatcher) emit(kind, id string) {
	if d.OnEvent == nil {
		return
	}
	if m, ok := d.Store.Get(id); ok {
		d.OnEvent(kind, m)
	}
}
