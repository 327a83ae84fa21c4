package runnotify

import (
	"context"
	"errors"
)

// Dispatcher delivers a lifecycle message to its destinations.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *Message) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, msg *Message) error

// Dispatch calls f(ctx, msg).
func (f DispatcherFunc) Dispatch(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// EmailDispatcher emails every message to Recipients, one email each.
type EmailDispatcher struct {
	Client     *Client
	Recipients []string
}

// Dispatch sends msg to each recipient in order.
func (d *EmailDispatcher) Dispatch(ctx context.Context, msg *Message) error {
	return d.Client.SendMessage(ctx, d.Recipients, msg)
}

// MultiDispatcher delivers to every dispatcher, even when some fail.
type MultiDispatcher []Dispatcher

// Dispatch returns the joined errors of the dispatchers that failed.
func (m MultiDispatcher) Dispatch(ctx context.Context, msg *Message) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
