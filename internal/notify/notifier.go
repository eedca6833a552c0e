// Package notify wraps the system notification facility. Delivery is
// best-effort: the facility may be missing or permission-gated, and a reminder
// consumed while the facility is down is gone, because re-delivering it on the
// next sweep would not change the permission state.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
)

var (
	// ErrUnavailable means no notification facility exists on this host.
	ErrUnavailable = errors.New("notify: facility unavailable")
	// ErrNotGranted means the facility exists but permission was denied.
	ErrNotGranted = errors.New("notify: permission not granted")
)

// Notification is the payload handed to the facility. Tag deduplicates:
// two notifications with the same tag collapse into one user-visible alert.
type Notification struct {
	Title string
	Body  string
	Tag   string
}

type Notifier interface {
	// Available reports whether notifications can currently be shown.
	// Returns ErrUnavailable or ErrNotGranted otherwise.
	Available(ctx context.Context) error
	Send(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log. It is the default
// sink for headless runs and keeps the delivery path exercised without a
// desktop session.
type LogNotifier struct {
	Log zerolog.Logger
}

func (l LogNotifier) Available(ctx context.Context) error { return nil }

func (l LogNotifier) Send(ctx context.Context, n Notification) error {
	l.Log.Info().
		Str("title", n.Title).
		Str("body", n.Body).
		Str("tag", n.Tag).
		Msg("notification")
	return nil
}

// CommandNotifier shells out to a notify-send style binary. The tag is passed
// as a hint so repeated deliveries replace each other where the desktop
// supports it.
type CommandNotifier struct {
	// Binary defaults to notify-send.
	Binary string
}

func (c CommandNotifier) binary() string {
	if c.Binary != "" {
		return c.Binary
	}
	return "notify-send"
}

func (c CommandNotifier) Available(ctx context.Context) error {
	if _, err := exec.LookPath(c.binary()); err != nil {
		return fmt.Errorf("%w: %s not found", ErrUnavailable, c.binary())
	}
	return nil
}

func (c CommandNotifier) Send(ctx context.Context, n Notification) error {
	if err := c.Available(ctx); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, c.binary(), "--hint", "string:x-dunst-stack-tag:"+n.Tag, n.Title, n.Body)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("notify: %s: %w", c.binary(), err)
	}
	return nil
}

// NopNotifier accepts and discards everything.
type NopNotifier struct{}

func (NopNotifier) Available(ctx context.Context) error            { return nil }
func (NopNotifier) Send(ctx context.Context, n Notification) error { return nil }
