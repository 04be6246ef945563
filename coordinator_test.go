package tradeloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// stubProvider replays a fixed snapshot or error.
type stubProvider struct {
	snapshot *MarketSnapshot
	err      error
}

func (p *stubProvider) Fetch(_ context.Context, _ string) (*MarketSnapshot, error) {
	return p.snapshot, p.err
}

// stubOracle replays a fixed prediction or error.
type stubOracle struct {
	predicted float64
	err       error
}

func (o *stubOracle) Predict(_ context.Context, _ FeatureVector) (float64, error) {
	return o.predicted, o.err
}

func marketUpdate(price float64) *MarketSnapshot {
	return &MarketSnapshot{
		Kind:         SnapshotMarketUpdate,
		Ticker:       "AAPL",
		Timestamp:    time.Now(),
		CurrentPrice: price,
		Indicators: map[string]float64{
			IndMA5: price, IndMA20: price, IndMA50: price,
		},
		Returns: []float64{0.01, -0.01, 0.02, 0.0, 0.01},
	}
}

func newTestCoordinator(t *testing.T, provider MarketProvider, oracle Oracle) *Coordinator {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	ledger, err := NewLedger(store, "alice", decimal.NewFromInt(10000))
	if err != nil {
		t.Fatalf("NewLedger() error: %v", err)
	}
	return NewCoordinator("AAPL", provider, oracle, ledger)
}

func TestRunCycleWithModel(t *testing.T) {
	// A 4% model forecast clears the threshold: the cycle ends in a BUY.
	provider := &stubProvider{snapshot: marketUpdate(100)}
	c := newTestCoordinator(t, provider, &stubOracle{predicted: 104})

	res := c.RunCycle(context.Background())

	if res.Status != CycleSuccess {
		t.Fatalf("status = %s (%s at %s), want %s", res.Status, res.Message, res.FailedStep, CycleSuccess)
	}
	if res.ID == "" {
		t.Error("cycle result has no id")
	}
	if res.PredictionSource != SourceModel {
		t.Errorf("prediction source = %q, want %q", res.PredictionSource, SourceModel)
	}
	if res.Decision == nil || res.Decision.Action != Buy {
		t.Fatalf("decision = %+v, want BUY", res.Decision)
	}
	if res.Execution == nil || res.Execution.Status != ExecSuccess {
		t.Fatalf("execution = %+v, want success", res.Execution)
	}
	if res.Summary == nil {
		t.Fatal("cycle result has no portfolio summary")
	}
	if !res.Summary.Balance.Equal(decimal.NewFromInt(9000)) {
		t.Errorf("balance after cycle = %s, want 9000", res.Summary.Balance)
	}

	if got := c.DecisionHistory(); len(got) != 1 || got[0].Action != Buy {
		t.Errorf("decision history = %+v, want one BUY", got)
	}
}

func TestRunCycleFallsBackWithoutOracle(t *testing.T) {
	// The fallback perturbs the price by at most 1%, always below the
	// trade threshold: a model-less cycle holds.
	c := newTestCoordinator(t, &stubProvider{snapshot: marketUpdate(100)}, nil)

	res := c.RunCycle(context.Background())

	if res.Status != CycleSuccess {
		t.Fatalf("status = %s (%s), want %s", res.Status, res.Message, CycleSuccess)
	}
	if res.PredictionSource != SourceFallback {
		t.Errorf("prediction source = %q, want %q", res.PredictionSource, SourceFallback)
	}
	if res.Decision.Action != Hold {
		t.Errorf("action = %s, want HOLD", res.Decision.Action)
	}
	if res.Decision.Confidence != FallbackConfidence {
		t.Errorf("confidence = %v, want %v", res.Decision.Confidence, FallbackConfidence)
	}
	if res.Execution.Status != ExecHold {
		t.Errorf("execution status = %s, want %s", res.Execution.Status, ExecHold)
	}
}

func TestRunCycleFallsBackWhenOracleUnavailable(t *testing.T) {
	oracle := &stubOracle{err: ErrOracleUnavailable}
	c := newTestCoordinator(t, &stubProvider{snapshot: marketUpdate(100)}, oracle)

	res := c.RunCycle(context.Background())

	if res.Status != CycleSuccess {
		t.Fatalf("status = %s (%s), want %s", res.Status, res.Message, CycleSuccess)
	}
	if res.PredictionSource != SourceFallback {
		t.Errorf("prediction source = %q, want %q", res.PredictionSource, SourceFallback)
	}
}

func TestRunCycleFailures(t *testing.T) {
	testCases := []struct {
		name       string
		provider   MarketProvider
		oracle     Oracle
		wantStatus CycleStatus
		wantStep   CycleStep
	}{
		{
			name:       "provider error fails the fetch step",
			provider:   &stubProvider{err: errors.New("feed down")},
			wantStatus: CycleError,
			wantStep:   StepFetch,
		},
		{
			name: "error snapshot fails the fetch step",
			provider: &stubProvider{snapshot: &MarketSnapshot{
				Kind: SnapshotError, Ticker: "AAPL", Message: "no data for ticker",
			}},
			wantStatus: CycleError,
			wantStep:   StepFetch,
		},
		{
			name:       "nil snapshot fails the fetch step",
			provider:   &stubProvider{},
			wantStatus: CycleError,
			wantStep:   StepFetch,
		},
		{
			name:       "snapshot without ticker skips the cycle",
			provider:   &stubProvider{snapshot: &MarketSnapshot{Kind: SnapshotMarketUpdate, CurrentPrice: 100}},
			wantStatus: CycleSkipped,
			wantStep:   StepExtract,
		},
		{
			name:       "hard oracle error fails the predict step",
			provider:   &stubProvider{snapshot: marketUpdate(100)},
			oracle:     &stubOracle{err: errors.New("inference crashed")},
			wantStatus: CycleError,
			wantStep:   StepPredict,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestCoordinator(t, tc.provider, tc.oracle)
			res := c.RunCycle(context.Background())

			if res.Status != tc.wantStatus {
				t.Errorf("status = %s, want %s", res.Status, tc.wantStatus)
			}
			if res.FailedStep != tc.wantStep {
				t.Errorf("failed step = %s, want %s", res.FailedStep, tc.wantStep)
			}
			if res.Message == "" {
				t.Error("failure result has no message")
			}
			if res.Execution != nil {
				t.Errorf("failed cycle carries an execution result: %+v", res.Execution)
			}
		})
	}
}

func TestRunCycleRecordsCommunication(t *testing.T) {
	c := newTestCoordinator(t, &stubProvider{snapshot: marketUpdate(100)}, &stubOracle{predicted: 104})

	c.RunCycle(context.Background())

	entries := c.CommunicationLog()
	if len(entries) != 5 {
		t.Fatalf("communication log has %d entries, want 5", len(entries))
	}
	wantHops := [][2]string{
		{"MarketProvider", "FeatureExtractor"},
		{"FeatureExtractor", "Oracle"},
		{"Oracle", "DecisionPolicy"},
		{"DecisionPolicy", "PortfolioLedger"},
		{"PortfolioLedger", "Coordinator"},
	}
	for i, hop := range wantHops {
		e := entries[i]
		if e.From != hop[0] || e.To != hop[1] {
			t.Errorf("entry %d = %s -> %s, want %s -> %s", i, e.From, e.To, hop[0], hop[1])
		}
		if e.ID == "" {
			t.Errorf("entry %d has no id", i)
		}
	}
}

func TestCoordinatorReset(t *testing.T) {
	c := newTestCoordinator(t, &stubProvider{snapshot: marketUpdate(100)}, &stubOracle{predicted: 104})

	if res := c.RunCycle(context.Background()); res.Status != CycleSuccess {
		t.Fatalf("status = %s (%s)", res.Status, res.Message)
	}

	if err := c.Reset(); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if got := c.DecisionHistory(); len(got) != 0 {
		t.Errorf("decision history has %d entries after reset", len(got))
	}
	if got := c.CommunicationLog(); len(got) != 0 {
		t.Errorf("communication log has %d entries after reset", len(got))
	}
	if !c.ledger.Balance().Equal(decimal.NewFromInt(10000)) {
		t.Errorf("balance after reset = %s, want 10000", c.ledger.Balance())
	}
}
