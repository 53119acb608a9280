package ports

import "context"

// Alerter escalates problems that need an operator.
type Alerter interface {
	// Notify delivers msg in the background. Delivery failures never reach the caller.
	Notify(ctx context.Context, msg string)
}
