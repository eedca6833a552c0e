package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ametov/dosewatch/internal/model"
	"github.com/ametov/dosewatch/internal/notify"
	"github.com/ametov/dosewatch/internal/sim"
	"github.com/ametov/dosewatch/internal/storage"
)

// ErrNotificationsUnavailable is returned by Recompute when the notification
// facility is missing or permission was denied. The caller owns surfacing it
// to whoever edits the rules; scheduling state stays intact, just disarmed.
var ErrNotificationsUnavailable = errors.New("scheduler: notifications unavailable")

const (
	// DefaultHorizon bounds how far ahead a foreground timer may be armed.
	// Anything beyond it is picked up by a later recompute, so the bound
	// never loses an event.
	DefaultHorizon = 7 * 24 * time.Hour

	// DefaultRefireCooldown suppresses repeated immediate-if-below
	// deliveries for the same rule while the level stays under threshold.
	DefaultRefireCooldown = 6 * time.Hour
)

// ConsumeFunc consumes one fired record: deliver, delete from the store,
// regenerate the successor if recurring.
type ConsumeFunc func(ctx context.Context, rec model.ReminderRecord, now time.Time) error

// Planner mirrors the declarative rule set into armed engine timers. It never
// diffs: any input change triggers a full cancel-and-recompute, which is
// cheap because rule sets are small and trivially correct because no partial
// state survives.
type Planner struct {
	Engine     *Engine
	Repo       storage.Repository
	Notifier   notify.Notifier
	Dispatcher notify.Dispatcher
	Consume    ConsumeFunc
	Log        zerolog.Logger

	// NotifyBefore shifts scheduled triggers earlier than their due time.
	NotifyBefore time.Duration
	// Horizon caps how far ahead timers are armed. Zero means DefaultHorizon.
	Horizon time.Duration
	// RefireCooldown dedupes immediate-if-below deliveries per rule id.
	// Zero means DefaultRefireCooldown.
	RefireCooldown time.Duration

	mu            sync.Mutex
	enabled       bool
	curve         sim.Curve
	lastImmediate map[string]time.Time
}

func (p *Planner) horizon() time.Duration {
	if p.Horizon > 0 {
		return p.Horizon
	}
	return DefaultHorizon
}

func (p *Planner) cooldown() time.Duration {
	if p.RefireCooldown > 0 {
		return p.RefireCooldown
	}
	return DefaultRefireCooldown
}

// SetEnabled flips the master switch and recomputes. Disabling clears every
// armed timer with no residual delivery.
func (p *Planner) SetEnabled(ctx context.Context, enabled bool, now time.Time) error {
	p.mu.Lock()
	p.enabled = enabled
	p.mu.Unlock()
	return p.Recompute(ctx, now)
}

// SetCurve installs a fresh simulation curve and recomputes.
func (p *Planner) SetCurve(ctx context.Context, curve sim.Curve, now time.Time) error {
	p.mu.Lock()
	p.curve = curve
	p.mu.Unlock()
	return p.Recompute(ctx, now)
}

// Recompute performs the full cancel-and-rearm pass: clear every outstanding
// timer, then derive the lookahead set from the current rules and curve.
func (p *Planner) Recompute(ctx context.Context, now time.Time) error {
	p.mu.Lock()
	enabled := p.enabled
	curve := p.curve
	p.mu.Unlock()

	p.Engine.Clear()
	if !enabled {
		return nil
	}
	if err := p.Notifier.Available(ctx); err != nil {
		// Latch the switch off so the denial is surfaced exactly once;
		// later rule edits recompute silently until re-enabled. Rules and
		// records stay intact, simply undelivered.
		p.mu.Lock()
		p.enabled = false
		p.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrNotificationsUnavailable, err)
	}

	if err := p.armScheduled(ctx, now); err != nil {
		return err
	}
	return p.evalThresholds(ctx, curve, now)
}

func (p *Planner) armScheduled(ctx context.Context, now time.Time) error {
	rules, err := p.Repo.ListRecurrences(ctx)
	if err != nil {
		return fmt.Errorf("list recurrences: %w", err)
	}
	for _, rule := range rules {
		for _, weekday := range rule.Weekdays {
			occurrence := model.NextOccurrence(weekday, rule.TimeOfDay, now)
			trigger := occurrence.Add(-p.NotifyBefore)
			if trigger.Sub(now) > p.horizon() {
				continue
			}
			rec := model.NewScheduledRecord(rule, weekday, occurrence)
			if err := p.Engine.Schedule(DeliveryEvent{Record: rec, TriggerAt: trigger}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Planner) evalThresholds(ctx context.Context, curve sim.Curve, now time.Time) error {
	rules, err := p.Repo.ListThresholds(ctx)
	if err != nil {
		return fmt.Errorf("list thresholds: %w", err)
	}
	for _, rule := range rules {
		switch rule.Mode {
		case model.NotifyAtCross:
			crossAt, ok := sim.FindCrossing(curve, rule.Threshold, now)
			if !ok {
				// No dose history or the level never drops that far:
				// a normal outcome, nothing to arm.
				continue
			}
			if crossAt.Sub(now) > p.horizon() {
				continue
			}
			rec := model.NewThresholdRecord(rule, model.ThresholdCrossRecordID(rule.ID, crossAt), crossAt)
			if err := p.Engine.Schedule(DeliveryEvent{Record: rec, TriggerAt: crossAt}); err != nil {
				return err
			}
		case model.NotifyImmediateIfBelow:
			level, ok := sim.LevelAt(curve, now)
			if !ok || level >= rule.Threshold {
				continue
			}
			if !p.shouldRefire(rule.ID, now) {
				continue
			}
			rec := model.NewThresholdRecord(rule, model.ThresholdImmediateRecordID(rule.ID, now), now)
			if err := p.Dispatcher.Deliver(ctx, rec); err != nil {
				p.Log.Error().Err(err).Str("threshold_id", rule.ID).Msg("immediate delivery failed")
			}
		}
	}
	return nil
}

// shouldRefire dedupes immediate-if-below deliveries: every recompute
// re-evaluates the condition, and without a cooldown the same rule would fire
// on each one for as long as the level stays low.
func (p *Planner) shouldRefire(ruleID string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastImmediate == nil {
		p.lastImmediate = make(map[string]time.Time)
	}
	if last, ok := p.lastImmediate[ruleID]; ok && now.Sub(last) < p.cooldown() {
		return false
	}
	p.lastImmediate[ruleID] = now
	return true
}

// Run drains fired timers until the context ends. Each fired event goes
// through the shared consume path, so a record fired in the foreground is
// consumed the same way a swept one is.
func (p *Planner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-p.Engine.C():
			if !ok {
				return
			}
			p.handleFired(ctx, ev)
		}
	}
}

func (p *Planner) handleFired(ctx context.Context, ev DeliveryEvent) {
	now := time.Now()
	if p.Consume != nil {
		if err := p.Consume(ctx, ev.Record, now); err != nil {
			p.Log.Error().Err(err).Str("record_id", ev.Record.ID).Msg("foreground consume failed")
		}
		return
	}
	if err := p.Dispatcher.Deliver(ctx, ev.Record); err != nil {
		p.Log.Error().Err(err).Str("record_id", ev.Record.ID).Msg("foreground delivery failed")
	}
}
