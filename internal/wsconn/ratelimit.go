package wsconn

import (
	"time"

	"golang.org/x/time/rate"
)

// violationGate wraps a token-bucket limiter with the multi-stage violation
// counter the protocol requires: violations 1..N-1 warn and drop the
// message but keep the connection open; violation N closes it. The counter
// resets on every message that doesn't trip the limiter.
type violationGate struct {
	limiter       *rate.Limiter
	maxViolations int
	violations    int
}

func newViolationGate(window time.Duration, max int, maxViolations int) *violationGate {
	// rate.Limiter's refill is continuous, not a fixed window, but
	// configuring burst == max and a refill rate of max per window gives the
	// same steady-state admission count per window while smoothing bursts
	// instead of admitting exactly max at the instant each window opens.
	perSecond := rate.Limit(float64(max) / window.Seconds())
	return &violationGate{
		limiter:       rate.NewLimiter(perSecond, max),
		maxViolations: maxViolations,
	}
}

// outcome enumerates what the caller should do with an inbound message.
type outcome int

const (
	outcomeAllow outcome = iota
	outcomeWarnAndDrop
	outcomeClose
)

// Check consumes one token; on exhaustion it increments the violation
// counter and reports whether the caller should merely warn-and-drop or
// close the connection outright. A successful allow resets the counter.
func (g *violationGate) Check() outcome {
	if g.limiter.Allow() {
		g.violations = 0
		return outcomeAllow
	}
	g.violations++
	if g.violations >= g.maxViolations {
		return outcomeClose
	}
	return outcomeWarnAndDrop
}
