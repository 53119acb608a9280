// Package notify delivers operator alerts. Alerts fan out to every configured
// Sender in the background; a failing sender is logged and never reaches the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const deliveryTimeout = 15 * time.Second

// Sender is one alert channel.
type Sender interface {
	Send(ctx context.Context, message string) error
	// Name identifies the channel in logs.
	Name() string
}

// Notifier implements ports.Alerter over a set of senders.
type Notifier struct {
	senders []Sender
	prefix  string
	wg      sync.WaitGroup
}

// NewNotifier builds a Notifier. prefix is prepended to every message (e.g. the network name).
func NewNotifier(prefix string, senders ...Sender) *Notifier {
	return &Notifier{senders: senders, prefix: prefix}
}

// Notify delivers msg asynchronously. The caller's cancellation does not abort
// delivery; each attempt has its own timeout.
func (n *Notifier) Notify(_ context.Context, msg string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("notify: sender panicked", "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()
		_ = n.Dispatch(ctx, msg)
	}()
}

// Dispatch sends msg to every sender synchronously and joins their errors.
func (n *Notifier) Dispatch(ctx context.Context, msg string) error {
	if n.prefix != "" {
		msg = fmt.Sprintf("[%s] %s", n.prefix, msg)
	}
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			slog.Warn("notify: sender failed", "sender", s.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		slog.Debug("notify: alert sent", "sender", s.Name())
	}
	return errors.Join(errs...)
}

// Wait blocks until in-flight deliveries finish. Called on shutdown.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// LogSender writes alerts to the structured log. Always configured so alerts
// are visible even without a chat channel.
type LogSender struct{}

func (LogSender) Send(_ context.Context, message string) error {
	slog.Warn("ALERT", "message", message)
	return nil
}

func (LogSender) Name() string { return "log" }
