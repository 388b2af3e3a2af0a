package application

import (
	"context"
	"errors"
)

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ string) error {
	return nil
}

// Notifiers fans a message out to every notifier.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range ns {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Indicator is the persistent "recording" signal shown for the lifetime of a
// capturing session. Show happens before the first frame is read; Dismiss
// happens no later than the session reaching Closed.
type Indicator interface {
	Show(ctx context.Context, info SessionInfo) error
	Dismiss(ctx context.Context, sessionID string) error
}

type NoopIndicator struct{}

func (n *NoopIndicator) Show(_ context.Context, _ SessionInfo) error { return nil }

func (n *NoopIndicator) Dismiss(_ context.Context, _ string) error { return nil }

// Indicators shows the session on every indicator. If one fails, the ones
// already shown are dismissed again.
type Indicators []Indicator

func (is Indicators) Show(ctx context.Context, info SessionInfo) error {
	for i, ind := range is {
		if err := ind.Show(ctx, info); err != nil {
			for j := i - 1; j >= 0; j-- {
				is[j].Dismiss(ctx, info.ID)
			}
			return err
		}
	}
	return nil
}

func (is Indicators) Dismiss(ctx context.Context, sessionID string) error {
	var errs []error
	for _, ind := range is {
		if err := ind.Dismiss(ctx, sessionID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
