package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ametov/dosewatch/internal/metrics"
	"github.com/ametov/dosewatch/internal/model"
)

const defaultTitle = "dosewatch"

// Dispatcher is the one delivery routine shared by the foreground scheduler
// and the background sweeper, so the payload and dedupe tag are identical no
// matter which context fires a record.
type Dispatcher struct {
	Notifier Notifier
	Log      zerolog.Logger
}

// Deliver formats the record and hands it to the notification facility. A
// facility that is unavailable or not granted is a silent no-op: the caller
// still treats the record as consumed.
func (d Dispatcher) Deliver(ctx context.Context, rec model.ReminderRecord) error {
	title := rec.Title
	if title == "" {
		title = defaultTitle
	}
	n := Notification{
		Title: title,
		Body:  rec.Body,
		Tag:   rec.ID,
	}

	err := d.Notifier.Send(ctx, n)
	switch {
	case err == nil:
		metrics.DeliveriesTotal.WithLabelValues(string(rec.Source)).Inc()
		return nil
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrNotGranted):
		metrics.DeliveriesSuppressed.Inc()
		d.Log.Debug().Str("record_id", rec.ID).Err(err).Msg("delivery suppressed")
		return nil
	default:
		return err
	}
}
