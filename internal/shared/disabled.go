package shared

import "context"

// Disabled stands in when no backend is configured: subscriptions never
// fire and every write fails with ErrUnavailable.
type Disabled struct {
	Reason string
}

func (Disabled) Subscribe(ctx context.Context, onChange func(Document)) (Subscription, error) {
	return subscriptionFunc(func() {}), nil
}

func (Disabled) UpsertMerge(ctx context.Context, patch Patch) error {
	return ErrUnavailable
}
