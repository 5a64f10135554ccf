package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "predex"

// engine
var (
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_total",
		Help:      "Orders handled by the matching engine, by kind and outcome.",
	}, []string{"kind", "outcome"}) // outcome: rested/filled/discarded/rejected

	TradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trades_total",
		Help:      "Trades produced by matching.",
	})

	MailboxFullTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_mailbox_full_total",
		Help:      "Commands rejected because an event actor mailbox was full.",
	})

	EngineEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_events_dropped_total",
		Help:      "Engine events dropped because the outbound bus was full.",
	})

	LevelEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "book_level_evictions_total",
		Help:      "Price levels evicted by the per-side level cap.",
	}, []string{"side"})

	ActiveBooks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "engine_active_books",
		Help:      "Event books currently resident.",
	})
)

// market maker
var (
	MMInventory = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mm_inventory",
		Help:      "Market maker inventory per event and side.",
	}, []string{"event", "side"})

	MMNetExposure = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mm_net_yes_exposure",
		Help:      "Signed net YES exposure of the market maker.",
	}, []string{"event"})

	MMErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mm_errors_total",
		Help:      "Market maker store failures by operation.",
	}, []string{"op"})
)

// relay / store
var (
	RelayPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_published_total",
		Help:      "Messages published to the shared bus by channel.",
	}, []string{"channel"})

	RelayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_errors_total",
		Help:      "Relay failures by channel and stage.",
	}, []string{"channel", "stage"})

	StoreCmdDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_cmd_duration_seconds",
		Help:      "KV store command latency.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"cmd", "status"})
)

var GoroutinePanics = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "goroutine_panics_total",
	Help:      "Panics recovered by safe.Go.",
}, []string{"goroutine"})
