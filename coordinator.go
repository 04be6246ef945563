package tradeloop

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MarketProvider yields market snapshots for a ticker. Absence of data is a
// normal, expected error, not an exceptional condition.
type MarketProvider interface {
	Fetch(ctx context.Context, ticker string) (*MarketSnapshot, error)
}

// Oracle predicts a future price from a feature vector. An oracle with no
// model to serve returns ErrOracleUnavailable; the coordinator then degrades
// to the fallback forecast.
type Oracle interface {
	Predict(ctx context.Context, features FeatureVector) (float64, error)
}

// FallbackPerturbation bounds the random perturbation applied to the
// current price when no oracle is available. The fallback exists to keep
// the loop exercisable without a trained model; it is always flagged as
// such in the cycle result.
const FallbackPerturbation = 0.01

// Prediction sources, surfaced in CycleResult so telemetry can distinguish
// a real forecast from the exercisability fallback.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// CycleStep names one stage of the pipeline, for structured failures.
type CycleStep string

const (
	StepFetch   CycleStep = "fetch"
	StepExtract CycleStep = "extract"
	StepPredict CycleStep = "predict"
	StepDecide  CycleStep = "decide"
	StepExecute CycleStep = "execute"
)

// CycleStatus is the overall outcome of one cycle.
type CycleStatus string

const (
	CycleSuccess CycleStatus = "success"
	CycleSkipped CycleStatus = "skipped"
	CycleError   CycleStatus = "error"
)

// CycleResult consolidates everything one cycle produced. On failure it
// carries the failed step and message instead of partial results.
type CycleResult struct {
	ID               string            `json:"id"`
	Status           CycleStatus       `json:"status"`
	FailedStep       CycleStep         `json:"failed_step,omitempty"`
	Message          string            `json:"message,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
	Ticker           string            `json:"ticker"`
	CurrentPrice     float64           `json:"current_price,omitempty"`
	PredictionSource string            `json:"prediction_source,omitempty"`
	Decision         *Decision         `json:"decision,omitempty"`
	Execution        *ExecutionResult  `json:"execution,omitempty"`
	Summary          *PortfolioSummary `json:"portfolio,omitempty"`
}

// CommEntry records one inter-component handoff, purely for observability.
type CommEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	MessageType string    `json:"message_type"`
}

// commRetention bounds the in-memory communication log.
const commRetention = 1000

// Coordinator sequences one full cycle: fetch, extract, predict, decide,
// execute. It short-circuits to an error result at the first step that
// fails, and records every handoff in the communication log.
//
// A Coordinator is bound to one portfolio identity; RunCycle serializes
// itself, so repeated calls produce independent, order-dependent trades.
// Coordinators for distinct identities are independent and may run in
// parallel.
type Coordinator struct {
	mu       sync.Mutex
	ticker   string
	provider MarketProvider
	oracle   Oracle // nil means no model: always fall back
	policy   *Policy
	ledger   *Ledger
	history  *DecisionHistory
	commLog  []CommEntry

	// FetchTimeout and PredictTimeout bound the two external calls of a
	// cycle. Zero means no bound beyond the caller's context.
	FetchTimeout   time.Duration
	PredictTimeout time.Duration
}

// NewCoordinator wires a trading loop for one ticker and one portfolio
// identity. oracle may be nil, in which case every prediction uses the
// flagged fallback.
func NewCoordinator(ticker string, provider MarketProvider, oracle Oracle, ledger *Ledger) *Coordinator {
	return &Coordinator{
		ticker:   ticker,
		provider: provider,
		oracle:   oracle,
		policy:   &Policy{},
		ledger:   ledger,
		history:  &DecisionHistory{},
	}
}

// RunCycle executes one full pass of the loop and returns its consolidated
// result. It never panics across the pipeline boundary: every failure comes
// back as an error-status result naming the failed step.
func (c *Coordinator) RunCycle(ctx context.Context) CycleResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := CycleResult{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Ticker:    c.ticker,
	}

	// Fetch.
	snapshot, err := c.fetch(ctx)
	if err != nil {
		return c.fail(res, StepFetch, err.Error())
	}
	if snapshot == nil {
		return c.fail(res, StepFetch, "provider returned no snapshot")
	}
	c.logComm("MarketProvider", "FeatureExtractor", string(snapshot.Kind))
	if snapshot.Kind == SnapshotError {
		return c.fail(res, StepFetch, snapshot.Message)
	}
	res.CurrentPrice = snapshot.CurrentPrice

	// Extract. An absent feature vector is a deliberate skip, not a fault.
	features, ok := ExtractFeatures(snapshot)
	if !ok {
		res.Status = CycleSkipped
		res.FailedStep = StepExtract
		res.Message = "snapshot is not a valid market update"
		return res
	}
	c.logComm("FeatureExtractor", "Oracle", "feature_vector")

	// Predict.
	predicted, source, err := c.predict(ctx, snapshot.CurrentPrice, features)
	if err != nil {
		return c.fail(res, StepPredict, err.Error())
	}
	res.PredictionSource = source
	c.logComm("Oracle", "DecisionPolicy", "prediction")

	// Decide. The policy never fails outward.
	decision := c.policy.Decide(c.ticker, snapshot.CurrentPrice, predicted, source == SourceModel, c.history)
	c.history.Append(decision)
	res.Decision = &decision
	c.logComm("DecisionPolicy", "PortfolioLedger", "trading_decision")

	// Execute.
	exec, err := c.ledger.Execute(decision)
	if err != nil {
		return c.fail(res, StepExecute, err.Error())
	}
	res.Execution = exec
	c.logComm("PortfolioLedger", "Coordinator", string(exec.Status))

	summary := c.ledger.Summary(snapshot.CurrentPrice)
	res.Summary = &summary
	res.Status = CycleSuccess
	return res
}

func (c *Coordinator) fetch(ctx context.Context) (*MarketSnapshot, error) {
	if c.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.FetchTimeout)
		defer cancel()
	}
	return c.provider.Fetch(ctx, c.ticker)
}

// predict asks the oracle for a forecast, degrading to a small random
// perturbation of the current price when no model is available.
func (c *Coordinator) predict(ctx context.Context, currentPrice float64, features FeatureVector) (float64, string, error) {
	if c.oracle == nil {
		return fallbackPrediction(currentPrice), SourceFallback, nil
	}
	if c.PredictTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PredictTimeout)
		defer cancel()
	}
	predicted, err := c.oracle.Predict(ctx, features)
	if err != nil {
		if KindOf(err) == KindOracleUnavailable || errors.Is(err, ErrOracleUnavailable) {
			log.Printf("%s: oracle unavailable, using fallback prediction", c.ticker)
			return fallbackPrediction(currentPrice), SourceFallback, nil
		}
		return 0, "", err
	}
	return predicted, SourceModel, nil
}

func fallbackPrediction(currentPrice float64) float64 {
	return currentPrice * (1 + (rand.Float64()*2-1)*FallbackPerturbation)
}

func (c *Coordinator) fail(res CycleResult, step CycleStep, msg string) CycleResult {
	res.Status = CycleError
	res.FailedStep = step
	res.Message = msg
	return res
}

// logComm appends a handoff to the communication log. Logging is best
// effort and never fails a cycle.
func (c *Coordinator) logComm(from, to, messageType string) {
	c.commLog = append(c.commLog, CommEntry{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		From:        from,
		To:          to,
		MessageType: messageType,
	})
	if len(c.commLog) > commRetention {
		c.commLog = c.commLog[len(c.commLog)-commRetention:]
	}
}

// CommunicationLog returns a copy of the recorded handoffs, oldest first.
func (c *Coordinator) CommunicationLog() []CommEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CommEntry, len(c.commLog))
	copy(out, c.commLog)
	return out
}

// DecisionHistory returns the retained decisions, oldest first.
func (c *Coordinator) DecisionHistory() []Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Decisions()
}

// Reset restores the ledger to its initial state and clears the decision
// history and communication log.
func (c *Coordinator) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ledger.Reset(); err != nil {
		return err
	}
	c.history.Reset()
	c.commLog = nil
	return nil
}
