package tradeloop

import (
	"fmt"
	"time"
)

// Action is the outcome of the decision policy for one cycle.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// ParseAction parses a string into an Action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case Buy, Sell, Hold:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown action: %q", s)
	}
}

// Decision is the immutable output of the decision policy: an action together
// with the prices and confidence that produced it.
type Decision struct {
	Timestamp      time.Time `json:"timestamp"`
	Ticker         string    `json:"ticker"`
	Action         Action    `json:"action"`
	CurrentPrice   float64   `json:"current_price"`
	PredictedPrice float64   `json:"predicted_price"` // after clamping and smoothing
	Confidence     float64   `json:"confidence"`
}

// historyRetention bounds the decision history; only the most recent
// decisions matter for smoothing.
const historyRetention = 100

// DecisionHistory is an ordered, append-only record of past decisions. It is
// consulted by the policy to smooth new predictions against recent ones.
type DecisionHistory struct {
	decisions []Decision
}

// Append records a decision. The history keeps only the most recent entries.
func (h *DecisionHistory) Append(d Decision) {
	h.decisions = append(h.decisions, d)
	if len(h.decisions) > historyRetention {
		h.decisions = h.decisions[len(h.decisions)-historyRetention:]
	}
}

// Len returns the number of retained decisions.
func (h *DecisionHistory) Len() int { return len(h.decisions) }

// LastPredictions returns up to n of the most recent predicted prices,
// oldest first.
func (h *DecisionHistory) LastPredictions(n int) []float64 {
	if n > len(h.decisions) {
		n = len(h.decisions)
	}
	out := make([]float64, 0, n)
	for _, d := range h.decisions[len(h.decisions)-n:] {
		out = append(out, d.PredictedPrice)
	}
	return out
}

// Decisions returns the retained decisions, oldest first.
func (h *DecisionHistory) Decisions() []Decision {
	out := make([]Decision, len(h.decisions))
	copy(out, h.decisions)
	return out
}

// Reset clears the history.
func (h *DecisionHistory) Reset() { h.decisions = nil }
