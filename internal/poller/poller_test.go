package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/plantclient/internal/model"
)

type staticAccounts []model.Account

func (s staticAccounts) Accounts() []model.Account { return s }

// fakeFetcher answers from a map; missing accounts are empty results.
type fakeFetcher struct {
	summaries map[string]model.AccountPnL
	fail      map[string]bool
	delay     time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeFetcher) ListAccountSummary(ctx context.Context, id string) (model.AccountPnL, bool, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		old := f.maxInFlight.Load()
		if current <= old || f.maxInFlight.CompareAndSwap(old, current) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return model.AccountPnL{}, false, ctx.Err()
		}
	}
	if f.fail[id] {
		return model.AccountPnL{}, false, errors.New("response timeout")
	}
	s, ok := f.summaries[id]
	return s, ok, nil
}

func accounts(ids ...string) staticAccounts {
	out := make(staticAccounts, len(ids))
	for i, id := range ids {
		out[i] = model.Account{ID: id}
	}
	return out
}

func TestPoller_PollAll(t *testing.T) {
	fetcher := &fakeFetcher{
		summaries: map[string]model.AccountPnL{
			"A1": {AccountID: "A1", Balance: decimal.NewFromInt(1000)},
			"A2": {AccountID: "A2"},
		},
		fail: map[string]bool{"A4": true},
	}

	var mu sync.Mutex
	var got []string
	handler := SummaryHandlerFunc(func(_ context.Context, s model.AccountPnL) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s.AccountID)
		return nil
	})

	p := New(Config{Interval: time.Hour}, fetcher, accounts("A1", "A2", "A3", "A4"), handler, nil)
	p.pollAll(context.Background())

	if len(got) != 2 {
		t.Errorf("handled %v, want A1 and A2", got)
	}
	st := p.Stats()
	if st.Cycles != 1 || st.Fetched != 2 || st.Empty != 1 || st.Errors != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestPoller_HandlerError(t *testing.T) {
	fetcher := &fakeFetcher{summaries: map[string]model.AccountPnL{"A1": {AccountID: "A1"}}}
	handler := SummaryHandlerFunc(func(context.Context, model.AccountPnL) error {
		return errors.New("publish failed")
	})

	p := New(Config{}, fetcher, accounts("A1"), handler, nil)
	p.pollAll(context.Background())

	if st := p.Stats(); st.Errors != 1 || st.Fetched != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestPoller_NoAccounts(t *testing.T) {
	p := New(Config{}, &fakeFetcher{}, accounts(), nil, nil)
	p.pollAll(context.Background())

	if st := p.Stats(); st.Cycles != 1 || st.Fetched != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestPoller_StartStop(t *testing.T) {
	fetcher := &fakeFetcher{summaries: map[string]model.AccountPnL{"A1": {AccountID: "A1"}}}

	var called atomic.Bool
	handler := SummaryHandlerFunc(func(context.Context, model.AccountPnL) error {
		called.Store(true)
		return nil
	})

	p := New(Config{Interval: 20 * time.Millisecond}, fetcher, accounts("A1"), handler, nil)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !called.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if !called.Load() {
		t.Error("handler was never called")
	}
}

func TestPoller_Concurrency(t *testing.T) {
	fetcher := &fakeFetcher{delay: 20 * time.Millisecond}

	var ids []string
	for i := 0; i < 12; i++ {
		ids = append(ids, "ACCT-"+string(rune('A'+i)))
	}

	p := New(Config{Concurrency: 3}, fetcher, accounts(ids...), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.pollAll(ctx)

	if got := fetcher.maxInFlight.Load(); got > 3 {
		t.Errorf("maxInFlight = %d, want <= 3", got)
	}
	if st := p.Stats(); st.Empty != 12 {
		t.Errorf("Stats().Empty = %d, want 12", st.Empty)
	}
}
