package metrics

import (
	"math/big"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/elys-network/yieldrouter/internal/types"
)

type RouterMetrics struct {
	workflows      *prometheus.CounterVec
	stepSeconds    *prometheus.HistogramVec
	venueErrors    *prometheus.CounterVec
	rewardsClaimed *prometheus.GaugeVec
	position       *prometheus.GaugeVec
	harvestCycles  *prometheus.CounterVec
}

var (
	routerOnce     sync.Once
	routerRegistry *RouterMetrics
)

// Router returns the process-wide collectors, registering them on first use.
func Router() *RouterMetrics {
	routerOnce.Do(func() {
		routerRegistry = &RouterMetrics{
			workflows: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "router_workflows_total",
				Help: "Count of finished workflows by name and terminal state.",
			}, []string{"workflow", "state"}),
			stepSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "router_workflow_step_seconds",
				Help:    "Duration of workflow steps including the venue round trip.",
				Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
			}, []string{"workflow", "step"}),
			venueErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "router_venue_errors_total",
				Help: "Count of failed venue calls by venue and error class.",
			}, []string{"venue", "class"}),
			rewardsClaimed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "router_rewards_claimed_raw",
				Help: "Raw amount realized by the last reward claim per asset.",
			}, []string{"asset"}),
			position: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "router_position_raw",
				Help: "Raw balance held at each tier of the routing chain.",
			}, []string{"tier"}),
			harvestCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "router_harvest_cycles_total",
				Help: "Count of harvest loop cycles by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			routerRegistry.workflows,
			routerRegistry.stepSeconds,
			routerRegistry.venueErrors,
			routerRegistry.rewardsClaimed,
			routerRegistry.position,
			routerRegistry.harvestCycles,
		)
	})
	return routerRegistry
}

func (m *RouterMetrics) ObserveWorkflow(name types.WorkflowName, state types.WorkflowState) {
	if m == nil {
		return
	}
	m.workflows.WithLabelValues(string(name), string(state)).Inc()
}

func (m *RouterMetrics) ObserveStep(name types.WorkflowName, step string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepSeconds.WithLabelValues(string(name), step).Observe(d.Seconds())
}

func (m *RouterMetrics) ObserveVenueError(venueName, class string) {
	if m == nil {
		return
	}
	if venueName == "" {
		venueName = "unknown"
	}
	m.venueErrors.WithLabelValues(venueName, class).Inc()
}

func (m *RouterMetrics) ObserveClaim(claimed types.ClaimedRewards) {
	if m == nil {
		return
	}
	for _, id := range claimed.Assets() {
		m.rewardsClaimed.WithLabelValues(string(id)).Set(toFloat(claimed.Get(id)))
	}
}

// ObservePosition publishes the share tiers and the per-asset free balances.
func (m *RouterMetrics) ObservePosition(assets types.Assets, pos types.Position) {
	if m == nil {
		return
	}
	m.position.WithLabelValues("pool_shares").Set(toFloat(pos.PoolShares))
	m.position.WithLabelValues("booster_deposit").Set(toFloat(pos.BoosterDeposit))
	m.position.WithLabelValues("staked").Set(toFloat(pos.Staked))
	for i, a := range assets.Base() {
		m.position.WithLabelValues("base:" + string(a.ID)).Set(toFloat(pos.BaseBalance(i)))
	}
	for id, amt := range pos.ClaimableRewards {
		m.position.WithLabelValues("claimable:" + string(id)).Set(toFloat(amt))
	}
}

func (m *RouterMetrics) ObserveHarvestCycle(outcome string) {
	if m == nil {
		return
	}
	m.harvestCycles.WithLabelValues(outcome).Inc()
}

// toFloat is lossy above 2^53 and is used for gauges only.
func toFloat(v sdkmath.Int) float64 {
	if v.IsNil() {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.BigInt()).Float64()
	return f
}
