package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/donpico/tienda/pkg/order"
	"github.com/rs/zerolog"
)

const DefaultInterval = 10 * time.Second

type Source interface {
	Notifications(ctx context.Context) (order.Notifications, error)
	MarkSeen(ctx context.Context, id string) error
}

// Notifier polls the admin notification endpoint and calls onNew whenever
// the number of unseen orders grows.
type Notifier struct {
	src      Source
	interval time.Duration
	onNew    func(order.Notifications)
	log      zerolog.Logger

	mu      sync.Mutex
	count   int
	pending []order.Order
}

func New(src Source, interval time.Duration, onNew func(order.Notifications), log zerolog.Logger) *Notifier {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if onNew == nil {
		onNew = func(order.Notifications) {}
	}
	return &Notifier{src: src, interval: interval, onNew: onNew, log: log}
}

// Run polls once right away and then every interval until ctx is done.
// Failed polls are logged and the previous state is kept.
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		if err := n.Poll(ctx); err != nil && ctx.Err() == nil {
			n.log.Warn().Err(err).Msg("notification poll failed")
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (n *Notifier) Poll(ctx context.Context) error {
	data, err := n.src.Notifications(ctx)
	if err != nil {
		return fmt.Errorf("poll notifications: %w", err)
	}

	n.mu.Lock()
	grew := data.NewOrders > n.count
	n.count = data.NewOrders
	n.pending = append([]order.Order(nil), data.Orders...)
	n.mu.Unlock()

	if grew {
		n.onNew(data)
	}
	return nil
}

func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

// Pending returns the unseen orders from the last poll, newest first.
func (n *Notifier) Pending() []order.Order {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]order.Order(nil), n.pending...)
}

// MarkSeen acknowledges one order and drops it from the local list.
func (n *Notifier) MarkSeen(ctx context.Context, id string) error {
	if err := n.src.MarkSeen(ctx, id); err != nil {
		return fmt.Errorf("mark order %s seen: %w", id, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for i, o := range n.pending {
		if o.ID == id {
			n.pending = append(n.pending[:i:i], n.pending[i+1:]...)
			if n.count > 0 {
				n.count--
			}
			break
		}
	}
	return nil
}

// MarkAllSeen acknowledges every pending order. Orders that fail stay
// pending and their errors are joined.
func (n *Notifier) MarkAllSeen(ctx context.Context) error {
	var errs []error
	for _, o := range n.Pending() {
		if err := n.MarkSeen(ctx, o.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
