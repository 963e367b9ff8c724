// Package notify shows a desktop notification once a lease is signed.
package notify

import (
	"context"
	"sync"
)

// Notification is one message for the desktop.
type Notification struct {
	Title string
	Body  string
	// Urgent raises the notification above normal priority.
	Urgent bool
}

// Notifier delivers notifications. Implementations must not block for long;
// a failed delivery is reported but never fatal to the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification) error

func (f Func) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Nop discards every notification.
var Nop Notifier = Func(func(context.Context, Notification) error { return nil })

// Memory keeps notifications in memory. Used by tests and headless runs.
type Memory struct {
	mu   sync.Mutex
	sent []Notification
}

func (m *Memory) Notify(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

// Sent returns the notifications delivered so far.
func (m *Memory) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.sent...)
}
