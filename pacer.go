package playback

import (
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/thesyncim/playback/internal/log"
)

// Clock is the wall-clock source of the pacer. Tests inject a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

// Pacer decides when the next video frame is due. Due never blocks; a
// caller that is not due yields and asks again.
//
// The reference is the time of the last release. MarkReleased resets it to
// now, so a late release does not compound. Time spent paused is excluded:
// on resume the reference moves forward by the pause length.
type Pacer struct {
	clock     Clock
	base      time.Duration // frame interval at speed 1
	transport *TransportState

	last     time.Time
	pausedAt time.Time

	logger    zerolog.Logger
	metrics   *Metrics
	lateWarns rate.Sometimes
}

// NewPacer creates a pacer whose first interval starts now. It registers
// itself for pause notifications on transport.
func NewPacer(meta ContainerMetadata, transport *TransportState, clock Clock) *Pacer {
	if clock == nil {
		clock = SystemClock()
	}
	p := &Pacer{
		clock:     clock,
		base:      meta.FrameInterval(),
		transport: transport,
		last:      clock.Now(),
		logger:    log.WithComponent("pacer"),
		lateWarns: rate.Sometimes{Interval: 5 * time.Second},
	}
	if transport.paused {
		p.pausedAt = p.last
	}
	transport.onPause = p.pauseChanged
	return p
}

func (p *Pacer) pauseChanged(paused bool) {
	now := p.clock.Now()
	if paused {
		p.pausedAt = now
		return
	}
	if !p.pausedAt.IsZero() {
		p.last = p.last.Add(now.Sub(p.pausedAt))
		p.pausedAt = time.Time{}
	}
}

// Interval is the effective interval at the current speed. At speed 0 it
// is effectively infinite.
func (p *Pacer) Interval() time.Duration {
	s := p.transport.speed
	if s <= 0 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(float64(p.base) / s)
}

// Elapsed returns the unpaused time since the last release.
func (p *Pacer) Elapsed() time.Duration {
	if p.transport.paused && !p.pausedAt.IsZero() {
		return p.pausedAt.Sub(p.last)
	}
	return p.clock.Now().Sub(p.last)
}

// Due reports whether the next frame should be released now.
func (p *Pacer) Due() bool {
	if p.transport.paused {
		return false
	}
	// elapsed*speed >= base avoids dividing by a zero speed.
	return float64(p.Elapsed())*p.transport.speed >= float64(p.base)
}

// Until returns how long until the next frame is due, 0 if it already is.
// While paused or at speed 0 it returns the interval at speed 1.
func (p *Pacer) Until() time.Duration {
	if p.transport.paused || p.transport.speed <= 0 {
		return p.base
	}
	if d := p.Interval() - p.Elapsed(); d > 0 {
		return d
	}
	return 0
}

// MarkReleased records a release at the current time and returns how late
// it was relative to its due time.
func (p *Pacer) MarkReleased() time.Duration {
	now := p.clock.Now()
	var late time.Duration
	if iv := p.Interval(); iv != time.Duration(math.MaxInt64) {
		if late = now.Sub(p.last) - iv; late < 0 {
			late = 0
		}
		if late > p.base {
			p.lateWarns.Do(func() {
				p.logger.Warn().Dur(log.FieldLate, late).Dur(log.FieldInterval, iv).Msg("frame released late")
			})
		}
	}
	p.last = now
	if p.transport.paused {
		p.pausedAt = now
	}
	p.metrics.frameReleased(late)
	return late
}
