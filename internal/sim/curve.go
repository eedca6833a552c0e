// Package sim holds the concentration curve consumed from the simulator and
// the pure math the reminder engine runs over it. The engine never computes a
// curve itself; it only scans one.
package sim

import (
	"context"
	"time"
)

// Sample is one point of a simulated concentration curve. TimeHours is the
// offset from the curve's start instant.
type Sample struct {
	TimeHours     float64
	Concentration float64
}

// Curve is an ordered sequence of samples, time strictly increasing, anchored
// at StartedAt (hour 0).
type Curve struct {
	StartedAt time.Time
	Samples   []Sample
}

func (c Curve) Empty() bool {
	return len(c.Samples) == 0
}

// At converts an hour offset into a wall-clock instant.
func (c Curve) At(hours float64) time.Time {
	return c.StartedAt.Add(time.Duration(hours * float64(time.Hour)))
}

// Simulator produces a curve from a dose history and body weight. It is an
// external collaborator; dose modelling lives outside this module.
type Simulator interface {
	Simulate(ctx context.Context, weightKg float64) (Curve, error)
}

// FindCrossing returns the instant the curve first drops below threshold.
// Only descending crossings count: the first consecutive pair with
// a >= threshold and b < threshold, linearly interpolated. If no such pair
// exists but the final sample is already below threshold, the level is under
// the floor right now and `now` is returned. An empty curve, or one that
// never goes below the threshold, yields no crossing.
func FindCrossing(c Curve, threshold float64, now time.Time) (time.Time, bool) {
	if c.Empty() {
		return time.Time{}, false
	}
	for i := 0; i+1 < len(c.Samples); i++ {
		a, b := c.Samples[i], c.Samples[i+1]
		if a.Concentration >= threshold && b.Concentration < threshold {
			ratio := (a.Concentration - threshold) / (a.Concentration - b.Concentration)
			hours := a.TimeHours + (b.TimeHours-a.TimeHours)*ratio
			return c.At(hours), true
		}
	}
	if c.Samples[len(c.Samples)-1].Concentration < threshold {
		return now, true
	}
	return time.Time{}, false
}

// LevelAt linearly interpolates the concentration at the given instant.
// Instants outside the sampled domain report false.
func LevelAt(c Curve, at time.Time) (float64, bool) {
	if c.Empty() {
		return 0, false
	}
	hours := at.Sub(c.StartedAt).Hours()
	first := c.Samples[0]
	last := c.Samples[len(c.Samples)-1]
	if hours < first.TimeHours || hours > last.TimeHours {
		return 0, false
	}
	for i := 0; i+1 < len(c.Samples); i++ {
		a, b := c.Samples[i], c.Samples[i+1]
		if hours > b.TimeHours {
			continue
		}
		span := b.TimeHours - a.TimeHours
		if span <= 0 {
			return b.Concentration, true
		}
		ratio := (hours - a.TimeHours) / span
		return a.Concentration + (b.Concentration-a.Concentration)*ratio, true
	}
	return last.Concentration, true
}
