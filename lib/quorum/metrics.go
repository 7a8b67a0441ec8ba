package quorum

import (
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// Exported process wide, scraped via the http transport's /metrics endpoint
var (
	proposalsTotal = vmetrics.NewCounter(`dcfg_quorum_proposals_total`)
	commitsTotal   = vmetrics.NewCounter(`dcfg_quorum_commits_total`)
	abortsTotal    = vmetrics.NewCounter(`dcfg_quorum_aborts_total`)
	commitDuration = vmetrics.NewHistogram(`dcfg_quorum_commit_duration_seconds`)
	opsPerProposal = vmetrics.NewHistogram(`dcfg_quorum_ops_per_proposal`)
)

// Stats keeps the proposal statistics of one pipeline in a go-metrics registry.
// The config-key service reports them on every tick.
type Stats struct {
	registry  gometrics.Registry
	proposals gometrics.Meter
	commits   gometrics.Timer
	aborts    gometrics.Counter
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Proposals     int64
	Commits       int64
	Aborts        int64
	ProposeRate1m float64
	CommitMean    time.Duration
	CommitP99     time.Duration
}

// NewStats registers the pipeline metrics in r (nil = a new private registry).
func NewStats(r gometrics.Registry) *Stats {
	if r == nil {
		r = gometrics.NewRegistry()
	}
	return &Stats{
		registry:  r,
		proposals: gometrics.GetOrRegisterMeter("quorum.proposals", r),
		commits:   gometrics.GetOrRegisterTimer("quorum.commit", r),
		aborts:    gometrics.GetOrRegisterCounter("quorum.aborts", r),
	}
}

// Registry returns the underlying go-metrics registry.
func (s *Stats) Registry() gometrics.Registry {
	return s.registry
}

func (s *Stats) proposed(ops int) {
	s.proposals.Mark(1)
	proposalsTotal.Inc()
	opsPerProposal.Update(float64(ops))
}

func (s *Stats) committed(start time.Time) {
	s.commits.UpdateSince(start)
	commitsTotal.Inc()
	commitDuration.UpdateDuration(start)
}

func (s *Stats) aborted() {
	s.aborts.Inc(1)
	abortsTotal.Inc()
}

// Snapshot copies the current values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Proposals:     s.proposals.Count(),
		Commits:       s.commits.Count(),
		Aborts:        s.aborts.Count(),
		ProposeRate1m: s.proposals.Rate1(),
		CommitMean:    time.Duration(s.commits.Mean()),
		CommitP99:     time.Duration(s.commits.Percentile(0.99)),
	}
}
