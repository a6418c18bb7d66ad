package ingest

import (
	"time"

	"github.com/fleetyard/eldcore/pkg/eld"
)

// Terminal outcomes recorded per event.
const (
	OutcomeAccepted = "accepted"
	OutcomeReplayed = "replayed"
	OutcomeRejected = "rejected"
)

// Metrics records pipeline outcomes. Implementations must be safe for
// concurrent use; the batch engine reports from multiple goroutines.
//
// A nil Metrics on the pipeline disables recording with zero overhead.
type Metrics interface {
	// ObserveEvent counts one terminal event outcome.
	ObserveEvent(eventType eld.EventType, outcome string)

	// ObserveSubmitDuration records the wall time of a single-event
	// submission.
	ObserveSubmitDuration(outcome string, duration time.Duration)

	// ObserveBatch records one batch run.
	ObserveBatch(total, accepted, rejected int)

	// ObserveGap records a tolerated sequence gap and its width.
	ObserveGap(width int)

	// ObserveDeadLetter counts one payload parked for operator retry.
	ObserveDeadLetter()
}

// SetMetrics attaches a metrics sink to the pipeline. Pass nil to
// disable. Not safe to call after the pipeline starts serving.
func (p *Pipeline) SetMetrics(m Metrics) {
	p.metrics = m
}

// observeOutcome classifies a terminal pipeline result for recording.
func observeOutcome(res *Result, err error) string {
	switch {
	case err != nil:
		return OutcomeRejected
	case res.Replayed:
		return OutcomeReplayed
	default:
		return OutcomeAccepted
	}
}

func (p *Pipeline) observeEvent(eventType eld.EventType, res *Result, err error) {
	if p.metrics == nil {
		return
	}
	p.metrics.ObserveEvent(eventType, observeOutcome(res, err))
}

func (p *Pipeline) observeGap(warning *eld.Warning) {
	if p.metrics == nil || warning == nil {
		return
	}
	p.metrics.ObserveGap(len(warning.Missing))
}
