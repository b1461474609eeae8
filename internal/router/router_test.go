package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultmesh/cvc/internal/registry"
	"github.com/vaultmesh/cvc/internal/types"
	"github.com/vaultmesh/cvc/internal/venue"
)

// fakeVenue models one venue with a flat price impact and a fixed fee. A
// quote for amount A returns A*(10000-impact)/10000 minus nothing, with the
// fee reported separately.
type fakeVenue struct {
	info         venue.Venue
	impactBps    int64
	cost         int64
	depth        sdkmath.Int
	execReceived *sdkmath.Int // overrides the quoted output when set
	execErr      error
}

func (v *fakeVenue) expectedOutput(amount sdkmath.Int) sdkmath.Int {
	return amount.MulRaw(10000 - v.impactBps).QuoRaw(10000)
}

type fakeVenueProvider struct {
	mu         sync.Mutex
	byDenom    map[string][]*fakeVenue
	venueCalls int
	quoteCalls int
	execCalls  int
}

func (p *fakeVenueProvider) find(venueID string) (*fakeVenue, error) {
	for _, vs := range p.byDenom {
		for _, v := range vs {
			if v.info.ID == venueID {
				return v, nil
			}
		}
	}
	return nil, fmt.Errorf("unknown venue %s", venueID)
}

func (p *fakeVenueProvider) Venues(denom string) ([]venue.Venue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.venueCalls++
	var out []venue.Venue
	for _, v := range p.byDenom[denom] {
		out = append(out, v.info)
	}
	return out, nil
}

func (p *fakeVenueProvider) Quote(_ context.Context, _ string, amount sdkmath.Int, venueID string) (venue.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quoteCalls++
	v, err := p.find(venueID)
	if err != nil {
		return venue.Quote{}, err
	}
	return venue.Quote{
		ExpectedOutput: v.expectedOutput(amount),
		PriceImpactBps: v.impactBps,
		Cost:           sdkmath.NewInt(v.cost),
	}, nil
}

func (p *fakeVenueProvider) Depth(_ context.Context, _ string, venueID string) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, err := p.find(venueID)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return v.depth, nil
}

func (p *fakeVenueProvider) Execute(_ context.Context, _ string, amount sdkmath.Int, venueID string, _ string) (venue.ExecutionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.execCalls++
	v, err := p.find(venueID)
	if err != nil {
		return venue.ExecutionResult{}, err
	}
	if v.execErr != nil {
		return venue.ExecutionResult{}, v.execErr
	}
	received := v.expectedOutput(amount)
	if v.execReceived != nil {
		received = *v.execReceived
	}
	return venue.ExecutionResult{ReceivedAmount: received, Cost: sdkmath.NewInt(v.cost)}, nil
}

func (p *fakeVenueProvider) calls() (venues, quotes, execs int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.venueCalls, p.quoteCalls, p.execCalls
}

type fakeLedger struct {
	balances map[string]sdkmath.Int
}

func (l *fakeLedger) BalanceOf(_ string, holder string) (sdkmath.Int, error) {
	bal, ok := l.balances[holder]
	if !ok {
		return sdkmath.ZeroInt(), nil
	}
	return bal, nil
}

// newFundRegistry builds a fund with a 60/40 uatom/uosmo component split.
func newFundRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry()
	_, err := reg.CreateCluster("fund-1", "Test Fund", "vault-a", 1, types.ClusterConfig{
		RebalanceThresholdBps: 500,
		MinOperationAmount:    sdkmath.NewInt(1),
		MaxSlippageBps:        300,
	})
	require.NoError(t, err)
	require.NoError(t, reg.SetComponents("fund-1", []types.FundComponent{
		{Denom: "uatom", WeightBps: 6000, IsActive: true},
		{Denom: "uosmo", WeightBps: 4000, IsActive: true},
	}))
	return reg
}

func deepVenues() *fakeVenueProvider {
	return &fakeVenueProvider{byDenom: map[string][]*fakeVenue{
		"uatom": {{
			info:      venue.Venue{ID: "amm-atom", Kind: venue.KindAMM, ChainID: 1},
			impactBps: 50, cost: 10, depth: sdkmath.NewInt(1_000_000),
		}},
		"uosmo": {{
			info:      venue.Venue{ID: "book-osmo", Kind: venue.KindOrderBook, ChainID: 1},
			impactBps: 80, cost: 5, depth: sdkmath.NewInt(500_000),
		}},
	}}
}

func newTestRouter(t *testing.T, reg *registry.Registry, venues *fakeVenueProvider, policy types.RedemptionPolicy, timeout time.Duration) *Router {
	t.Helper()
	rt, err := New(Config{
		Registry:          reg,
		Venues:            venues,
		Ledger:            &fakeLedger{balances: map[string]sdkmath.Int{"alice": sdkmath.NewInt(1_000_000)}},
		Policy:            policy,
		LocalChainID:      1,
		RedemptionTimeout: timeout,
	})
	require.NoError(t, err)
	return rt
}

func TestRequestRedemptionApproves(t *testing.T) {
	reg := newFundRegistry(t)
	venues := deepVenues()
	rt := newTestRouter(t, reg, venues, types.PolicyBestEffort, time.Hour)

	req, err := rt.RequestRedemption(context.Background(), "fund-1", "alice",
		sdkmath.NewInt(10000), types.StrategyOptimal, 300, sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.Equal(t, types.RedemptionApproved, req.Status)
	require.Len(t, req.Routes, 2)

	byDenom := map[string]types.LiquidationRoute{}
	for _, route := range req.Routes {
		byDenom[route.Denom] = route
	}
	assert.Equal(t, sdkmath.NewInt(6000), byDenom["uatom"].Amount)
	assert.Equal(t, sdkmath.NewInt(4000), byDenom["uosmo"].Amount)
	assert.False(t, byDenom["uatom"].RequiresCrossChain)
}

func TestRequestRedemptionValidation(t *testing.T) {
	reg := newFundRegistry(t)
	venues := deepVenues()
	rt := newTestRouter(t, reg, venues, types.PolicyBestEffort, time.Hour)

	_, err := rt.RequestRedemption(context.Background(), "fund-1", "",
		sdkmath.NewInt(100), types.StrategyOptimal, 300, sdkmath.ZeroInt())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = rt.RequestRedemption(context.Background(), "fund-1", "alice",
		sdkmath.ZeroInt(), types.StrategyOptimal, 300, sdkmath.ZeroInt())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = rt.RequestRedemption(context.Background(), "fund-1", "alice",
		sdkmath.NewInt(100), "SOMETHING_ELSE", 300, sdkmath.ZeroInt())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = rt.RequestRedemption(context.Background(), "missing", "alice",
		sdkmath.NewInt(100), types.StrategyOptimal, 300, sdkmath.ZeroInt())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	// None of the rejected requests may generate venue traffic.
	venueCalls, quoteCalls, execCalls := venues.calls()
	assert.Equal(t, 0, venueCalls)
	assert.Equal(t, 0, quoteCalls)
	assert.Equal(t, 0, execCalls)
}

func TestRequestRedemptionChecksHoldingsBeforeVenues(t *testing.T) {
	reg := newFundRegistry(t)
	venues := deepVenues()
	rt, err := New(Config{
		Registry:     reg,
		Venues:       venues,
		Ledger:       &fakeLedger{balances: map[string]sdkmath.Int{"alice": sdkmath.NewInt(500)}},
		LocalChainID: 1,
	})
	require.NoError(t, err)

	req, err := rt.RequestRedemption(context.Background(), "fund-1", "alice",
		sdkmath.NewInt(10000), types.StrategyOptimal, 300, sdkmath.ZeroInt())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
	assert.Equal(t, types.RedemptionFailed, req.Status)

	venueCalls, quoteCalls, _ := venues.calls()
	assert.Equal(t, 0, venueCalls)
	assert.Equal(t, 0, quoteCalls)
}

func TestCheckLiquidityShortfall(t *testing.T) {
	reg := newFundRegistry(t)
	venues := deepVenues()
	// Cap the uosmo book at 80% of the 4000 the redemption needs.
	venues.byDenom["uosmo"][0].depth = sdkmath.NewInt(3200)
	rt := newTestRouter(t, reg, venues, types.PolicyBestEffort, time.Hour)

	report, err := rt.CheckLiquidityAvailability(context.Background(), "fund-1",
		sdkmath.NewInt(10000), types.StrategyOptimal)
	require.NoError(t, err)
	assert.False(t, report.Sufficient)
	require.Contains(t, report.Shortfalls, "uosmo")
	assert.Equal(t, sdkmath.NewInt(800), report.Shortfalls["uosmo"])
	assert.NotContains(t, report.Shortfalls, "uatom")
}

func TestCheckLiquiditySufficient(t *testing.T) {
	reg := newFundRegistry(t)
	rt := newTestRouter(t, reg, deepVenues(), types.PolicyBestEffort, time.Hour)

	report, err := rt.CheckLiquidityAvailability(context.Background(), "fund-1",
		sdkmath.NewInt(10000), types.StrategyOptimal)
	require.NoError(t, err)
	assert.True(t, report.Sufficient)
	assert.Nil(t, report.Shortfalls)
	assert.Len(t, report.Components, 2)
}

func TestRejectOnInsufficientPolicy(t *testing.T) {
	reg := newFundRegistry(t)
	venues := deepVenues()
	venues.byDenom["uosmo"][0].depth = sdkmath.NewInt(3200)
	rt := newTestRouter(t, reg, venues, types.PolicyRejectOnInsufficient, time.Hour)

	req, err := rt.RequestRedemption(context.Background(), "fund-1", "alice",
		sdkmath.NewInt(10000), types.StrategyOptimal, 300, sdkmath.ZeroInt())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInsufficientLiquidity))
	assert.Equal(t, types.RedemptionFailed, req.Status)

	var liqErr *types.InsufficientLiquidityError
	require.True(t, errors.As(err, &liqErr))
	assert.Contains(t, liqErr.Shortfalls, "uosmo")
}

func TestBestEffortApprovesPartialRoute(t *testing.T) {
	reg := newFundRegistry(t)
	venues := deepVenues()
	// Impact above the 300 bps cap: the venue can only take a scaled slice.
	venues.byDenom["uosmo"][0].impactBps = 400
	rt := newTestRouter(t, reg, venues, types.PolicyBestEffort, time.Hour)

	req, err := rt.RequestRedemption(context.Background(), "fund-1", "alice",
		sdkmath.NewInt(10000), types.StrategyOptimal, 300, sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.Equal(t, types.RedemptionApproved, req.Status)

	for _, route := range req.Routes {
		if route.Denom == "uosmo" {
			// 4000 * 300/400 = 3000 routable within the cap.
			assert.Equal(t, sdkmath.NewInt(3000), route.Amount)
		}
	}
}

func TestStrategyFilters(t *testing.T) {
	reg := newFundRegistry(t)
	venues := &fakeVenueProvider{byDenom: map[string][]*fakeVenue{
		"uatom": {
			{info: venue.Venue{ID: "amm-local", Kind: venue.KindAMM, ChainID: 1},
				impactBps: 50, cost: 10, depth: sdkmath.NewInt(1_000_000)},
			{info: venue.Venue{ID: "book-local", Kind: venue.KindOrderBook, ChainID: 1},
				impactBps: 40, cost: 10, depth: sdkmath.NewInt(1_000_000)},
			{info: venue.Venue{ID: "amm-remote", Kind: venue.KindAMM, ChainID: 9},
				impactBps: 10, cost: 10, depth: sdkmath.NewInt(5_000_000)},
		},
	}}
	rt := newTestRouter(t, reg, venues, types.PolicyBestEffort, time.Hour)

	route, err := rt.CalculateOptimalRoute(context.Background(), "uatom",
		sdkmath.NewInt(1000), types.StrategyAMMOnly, 300)
	require.NoError(t, err)
	for _, src := range route.Sources {
		assert.NotEqual(t, "book-local", src.VenueID)
	}

	route, err = rt.CalculateOptimalRoute(context.Background(), "uatom",
		sdkmath.NewInt(1000), types.StrategyOrderBookOnly, 300)
	require.NoError(t, err)
	require.Len(t, route.Sources, 1)
	assert.Equal(t, "book-local", route.Sources[0].VenueID)

	// OPTIMAL considers every venue and takes the best net output, even when
	// that venue sits on another chain.
	route, err = rt.CalculateOptimalRoute(context.Background(), "uatom",
		sdkmath.NewInt(1000), types.StrategyOptimal, 300)
	require.NoError(t, err)
	assert.Equal(t, "amm-remote", route.Sources[0].VenueID)
	assert.True(t, route.RequiresCrossChain)

	// MULTI_CHAIN picks the remote venue with the best net output.
	route, err = rt.CalculateOptimalRoute(context.Background(), "uatom",
		sdkmath.NewInt(1000), types.StrategyMultiChain, 300)
	require.NoError(t, err)
	assert.True(t, route.RequiresCrossChain)
	assert.Equal(t, "amm-remote", route.Sources[0].VenueID)
}

// A component whose only liquidity sits on a remote chain must still route
// under OPTIMAL.
func TestOptimalRoutesRemoteOnlyLiquidity(t *testing.T) {
	reg := newFundRegistry(t)
	venues := &fakeVenueProvider{byDenom: map[string][]*fakeVenue{
		"uatom": {
			{info: venue.Venue{ID: "amm-far", Kind: venue.KindAMM, ChainID: 9},
				impactBps: 50, cost: 10, depth: sdkmath.NewInt(1_000_000)},
		},
	}}
	rt := newTestRouter(t, reg, venues, types.PolicyBestEffort, time.Hour)

	route, err := rt.CalculateOptimalRoute(context.Background(), "uatom",
		sdkmath.NewInt(1000), types.StrategyOptimal, 300)
	require.NoError(t, err)
	require.Len(t, route.Sources, 1)
	assert.Equal(t, "amm-far", route.Sources[0].VenueID)
	assert.Equal(t, types.ChainID(9), route.Sources[0].ChainID)
	assert.True(t, route.RequiresCrossChain)
	assert.Equal(t, types.ChainID(9), route.ExecutionChain)
}

func TestEmergencyRouteUsesDeepestVenue(t *testing.T) {
	reg := newFundRegistry(t)
	venues := &fakeVenueProvider{byDenom: map[string][]*fakeVenue{
		"uatom": {
			{info: venue.Venue{ID: "amm-shallow", Kind: venue.KindAMM, ChainID: 1},
				impactBps: 10, cost: 1, depth: sdkmath.NewInt(5_000)},
			{info: venue.Venue{ID: "amm-deep", Kind: venue.KindAMM, ChainID: 9},
				impactBps: 1200, cost: 100, depth: sdkmath.NewInt(50_000)},
		},
	}}
	rt := newTestRouter(t, reg, venues, types.PolicyBestEffort, time.Hour)

	route, err := rt.CalculateOptimalRoute(context.Background(), "uatom",
		sdkmath.NewInt(6000), types.StrategyEmergency, 300)
	require.NoError(t, err)
	require.Len(t, route.Sources, 1)
	assert.Equal(t, "amm-deep", route.Sources[0].VenueID)
	assert.Equal(t, sdkmath.NewInt(6000), route.Amount)
	assert.True(t, route.RequiresCrossChain)
}

func TestExecuteRedemptionCompletes(t *testing.T) {
	reg := newFundRegistry(t)
	rt := newTestRouter(t, reg, deepVenues(), types.PolicyBestEffort, time.Hour)

	req, err := rt.RequestRedemption(context.Background(), "fund-1", "alice",
		sdkmath.NewInt(10000), types.StrategyOptimal, 300, sdkmath.ZeroInt())
	require.NoError(t, err)

	done, err := rt.ExecuteRedemption(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RedemptionCompleted, done.Status)

	// 6000 at 50 bps impact plus 4000 at 80 bps impact.
	expected := sdkmath.NewInt(5970 + 3968)
	assert.Equal(t, expected, done.TotalReturned)
	require.Len(t, done.Liquidations, 2)
	for _, liq := range done.Liquidations {
		assert.True(t, liq.Success)
	}
}

func TestExecuteRedemptionRequiresApproved(t *testing.T) {
	reg := newFundRegistry(t)
	rt := newTestRouter(t, reg, deepVenues(), types.PolicyBestEffort, time.Hour)

	req, err := rt.RequestRedemption(context.Background(), "fund-1", "alice",
		sdkmath.NewInt(10000), types.StrategyOptimal, 300, sdkmath.ZeroInt())
	require.NoError(t, err)

	_, err = rt.ExecuteRedemption(context.Background(), req.ID)
	require.NoError(t, err)

	// A completed request cannot be executed again.
	_, err = rt.ExecuteRedemption(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = rt.ExecuteRedemption(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestExecuteRedemptionPartialFailureNoRollback(t *testing.T) {
	reg := newFundRegistry(t)
	venues := deepVenues()
	venues.byDenom["uosmo"][0].execErr = fmt.Errorf("book halted")
	rt := newTestRouter(t, reg, venues, types.PolicyBestEffort, time.Hour)

	req, err := rt.RequestRedemption(context.Background(), "fund-1", "alice",
		sdkmath.NewInt(10000), types.StrategyOptimal, 300, sdkmath.ZeroInt())
	require.NoError(t, err)

	done, err := rt.ExecuteRedemption(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrPartialExecution))

	// The uatom fill stays counted; min return of zero still completes.
	assert.Equal(t, types.RedemptionCompleted, done.Status)
	assert.Equal(t, sdkmath.NewInt(5970), done.TotalReturned)

	var succeeded, failed int
	for _, liq := range done.Liquidations {
		if liq.Success {
			succeeded++
		} else {
			failed++
			assert.Contains(t, liq.Message, "book halted")
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)
}

func TestExecuteRedemptionMinReturnFails(t *testing.T) {
	reg := newFundRegistry(t)
	venues := deepVenues()
	venues.byDenom["uosmo"][0].execErr = fmt.Errorf("book halted")
	rt := newTestRouter(t, reg, venues, types.PolicyBestEffort, time.Hour)

	req, err := rt.RequestRedemption(context.Background(), "fund-1", "alice",
		sdkmath.NewInt(10000), types.StrategyOptimal, 300, sdkmath.NewInt(9000))
	require.NoError(t, err)

	done, err := rt.ExecuteRedemption(context.Background(), req.ID)
	require.Error(t, err)
	assert.Equal(t, types.RedemptionFailed, done.Status)
	assert.Equal(t, sdkmath.NewInt(5970), done.TotalReturned)
	assert.NotEmpty(t, done.FailureReason)
}

func TestExecuteRedemptionSlippageBreachCounted(t *testing.T) {
	reg := newFundRegistry(t)
	venues := deepVenues()
	// Fill far below the quoted 5970: breach, but the tokens still count.
	bad := sdkmath.NewInt(5000)
	venues.byDenom["uatom"][0].execReceived = &bad
	rt := newTestRouter(t, reg, venues, types.PolicyBestEffort, time.Hour)

	req, err := rt.RequestRedemption(context.Background(), "fund-1", "alice",
		sdkmath.NewInt(10000), types.StrategyOptimal, 300, sdkmath.ZeroInt())
	require.NoError(t, err)

	done, err := rt.ExecuteRedemption(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrPartialExecution))
	assert.Equal(t, types.RedemptionCompleted, done.Status)
	assert.Equal(t, sdkmath.NewInt(5000+3968), done.TotalReturned)

	var breached bool
	for _, liq := range done.Liquidations {
		if liq.Source == "amm-atom" {
			assert.False(t, liq.Success)
			breached = true
		}
	}
	assert.True(t, breached)
}

func TestExecuteRedemptionExpiredRoute(t *testing.T) {
	reg := newFundRegistry(t)
	rt := newTestRouter(t, reg, deepVenues(), types.PolicyBestEffort, time.Nanosecond)

	req, err := rt.RequestRedemption(context.Background(), "fund-1", "alice",
		sdkmath.NewInt(10000), types.StrategyOptimal, 300, sdkmath.ZeroInt())
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	done, err := rt.ExecuteRedemption(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrDeadlineExceeded))
	assert.Equal(t, types.RedemptionFailed, done.Status)
}

func TestCancelRedemption(t *testing.T) {
	reg := newFundRegistry(t)
	rt := newTestRouter(t, reg, deepVenues(), types.PolicyBestEffort, time.Hour)

	req, err := rt.RequestRedemption(context.Background(), "fund-1", "alice",
		sdkmath.NewInt(10000), types.StrategyOptimal, 300, sdkmath.ZeroInt())
	require.NoError(t, err)

	_, err = rt.CancelRedemption(req.ID, "mallory")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))

	cancelled, err := rt.CancelRedemption(req.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.RedemptionCancelled, cancelled.Status)

	// Cancelled requests cannot be executed.
	_, err = rt.ExecuteRedemption(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestCancelAfterExecutionRejected(t *testing.T) {
	reg := newFundRegistry(t)
	rt := newTestRouter(t, reg, deepVenues(), types.PolicyBestEffort, time.Hour)

	req, err := rt.RequestRedemption(context.Background(), "fund-1", "alice",
		sdkmath.NewInt(10000), types.StrategyOptimal, 300, sdkmath.ZeroInt())
	require.NoError(t, err)
	_, err = rt.ExecuteRedemption(context.Background(), req.ID)
	require.NoError(t, err)

	_, err = rt.CancelRedemption(req.ID, "alice")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestRestoreFailsInterruptedRequests(t *testing.T) {
	reg := newFundRegistry(t)
	rt := newTestRouter(t, reg, deepVenues(), types.PolicyBestEffort, time.Hour)

	rt.Restore([]types.RedemptionRequest{
		{ID: "req-exec", Requester: "alice", FundID: "fund-1", Status: types.RedemptionExecuting,
			TokenAmount: sdkmath.NewInt(100), TotalReturned: sdkmath.ZeroInt(), MinReturnAmount: sdkmath.ZeroInt()},
		{ID: "req-approved", Requester: "alice", FundID: "fund-1", Status: types.RedemptionApproved,
			TokenAmount: sdkmath.NewInt(100), TotalReturned: sdkmath.ZeroInt(), MinReturnAmount: sdkmath.ZeroInt(),
			Deadline: time.Now().Add(time.Hour)},
	})

	got, err := rt.GetRedemption("req-exec")
	require.NoError(t, err)
	assert.Equal(t, types.RedemptionFailed, got.Status)
	assert.Equal(t, "interrupted by restart", got.FailureReason)

	got, err = rt.GetRedemption("req-approved")
	require.NoError(t, err)
	assert.Equal(t, types.RedemptionApproved, got.Status)
}

func TestNoVenuesForComponentFailsRequest(t *testing.T) {
	reg := newFundRegistry(t)
	venues := deepVenues()
	delete(venues.byDenom, "uosmo")
	rt := newTestRouter(t, reg, venues, types.PolicyBestEffort, time.Hour)

	req, err := rt.RequestRedemption(context.Background(), "fund-1", "alice",
		sdkmath.NewInt(10000), types.StrategyOptimal, 300, sdkmath.ZeroInt())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInsufficientLiquidity))
	assert.Equal(t, types.RedemptionFailed, req.Status)
}
