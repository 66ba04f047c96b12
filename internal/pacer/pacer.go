// Package pacer decides when to pull the next video frame and when to move
// between rate tiers, using the count of unanswered pull requests as the
// only congestion signal.
package pacer

import (
	"time"

	"github.com/brporter/remoteview/internal/ladder"
)

// State is the mutable pacing state of one video session.
type State struct {
	TierIndex   int
	TickCounter int
	// Outstanding is pulls sent minus frames received. It can dip below
	// zero when a frame that was already in flight lands after a pace-down.
	Outstanding int
}

// Decision is what a tick asks the video channel to do.
type Decision struct {
	// Retimed is set when the tier changed; the tick timer must be
	// rebuilt with Interval().
	Retimed bool
	// Send is set when a pull request should go out. The pacer has
	// already counted it as outstanding.
	Send bool
}

// Pacer walks a rate ladder. It is not safe for concurrent use; the
// owning session serializes every call.
type Pacer struct {
	tiers []ladder.Tier
	state State
}

// New returns a pacer positioned at the ladder's start tier.
func New(tiers []ladder.Tier) *Pacer {
	if len(tiers) == 0 {
		panic("pacer: empty ladder")
	}
	return &Pacer{
		tiers: tiers,
		state: State{TierIndex: ladder.StartIndex(tiers)},
	}
}

// State returns a copy of the current state.
func (p *Pacer) State() State { return p.state }

// Tier returns the current tier.
func (p *Pacer) Tier() ladder.Tier { return p.tiers[p.state.TierIndex] }

// Interval is the tick period for the current tier.
func (p *Pacer) Interval() time.Duration { return p.Tier().FrameInterval }

// Requested records a pull request sent outside of Tick, such as the
// initial pull when the channel opens.
func (p *Pacer) Requested() { p.state.Outstanding++ }

// Responded records one received frame.
func (p *Pacer) Responded() { p.state.Outstanding-- }

// Tick advances the pacer by one timer period.
func (p *Pacer) Tick() Decision {
	var d Decision
	p.state.TickCounter++

	tier := p.Tier()
	if p.state.TickCounter%tier.ScaleAttemptFrequency == 0 {
		backlog := p.state.Outstanding
		switch {
		case backlog <= tier.ScaleUpAt && p.state.TierIndex < len(p.tiers)-1:
			p.retime(p.state.TierIndex + 1)
			d.Retimed = true
		case p.state.TierIndex != 0 && backlog >= tier.ScaleDownAt:
			p.retime(p.state.TierIndex - 1)
			d.Retimed = true
		}
	}

	if p.state.Outstanding <= p.Tier().ScaleDownAt {
		p.state.Outstanding++
		d.Send = true
	}
	return d
}

func (p *Pacer) retime(index int) {
	p.state.TierIndex = index
	p.state.TickCounter = 0
}
