package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the collectors shared by the session manager, the judge
// evaluator and the transport.
type Metrics struct {
	RoomsActive      prometheus.Gauge
	RoundsStarted    prometheus.Counter
	RoundsCompleted  *prometheus.CounterVec
	JudgeAttempts    *prometheus.CounterVec
	JudgeFallbacks   *prometheus.CounterVec
	JudgeDuration    prometheus.Histogram
	PlayersEvicted   prometheus.Counter
	EventsAppended   *prometheus.CounterVec
	ArchiveDropped   prometheus.Counter
	RequestsLimited  prometheus.Counter
	StreamsConnected prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "doodle",
			Name:      "rooms_active",
			Help:      "Rooms currently held in memory.",
		}),
		RoundsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doodle",
			Name:      "rounds_started_total",
			Help:      "Rounds started across all rooms.",
		}),
		RoundsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doodle",
			Name:      "rounds_completed_total",
			Help:      "Rounds scored, by how the ranking was produced.",
		}, []string{"source"}),
		JudgeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doodle",
			Name:      "judge_attempts_total",
			Help:      "Judge calls, by model and outcome.",
		}, []string{"model", "outcome"}),
		JudgeFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doodle",
			Name:      "judge_fallbacks_total",
			Help:      "Evaluations replaced by the fallback ranking.",
		}, []string{"model"}),
		JudgeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "doodle",
			Name:      "judge_duration_seconds",
			Help:      "Wall time of a full evaluation including retries.",
			Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60},
		}),
		PlayersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doodle",
			Name:      "players_evicted_total",
			Help:      "Players removed by the liveness monitor.",
		}),
		EventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doodle",
			Name:      "events_appended_total",
			Help:      "Game events appended to the event log.",
		}, []string{"type"}),
		ArchiveDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doodle",
			Name:      "archive_dropped_total",
			Help:      "Events not archived because the buffer was full.",
		}),
		RequestsLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doodle",
			Name:      "requests_rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		StreamsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "doodle",
			Name:      "streams_connected",
			Help:      "Open websocket catch-up streams.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.RoomsActive,
			m.RoundsStarted,
			m.RoundsCompleted,
			m.JudgeAttempts,
			m.JudgeFallbacks,
			m.JudgeDuration,
			m.PlayersEvicted,
			m.EventsAppended,
			m.ArchiveDropped,
			m.RequestsLimited,
			m.StreamsConnected,
		)
	}
	return m
}
