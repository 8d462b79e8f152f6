package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const pre = "datanest_"

// Market groups the lifecycle outcome counters.
var Market = struct {
	IntentsCreated     prometheus.Counter
	IntentsRejected    *prometheus.CounterVec
	PurchasesConfirmed prometheus.Counter
	PurchasesFailed    prometheus.Counter
	Downloads          prometheus.Counter
	ProposalsSubmitted prometheus.Counter
	ProposalsAccepted  prometheus.Counter
	DatasetsCreated    prometheus.Counter
	EventPublishErrors prometheus.Counter
}{
	IntentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
		Name: pre + "payment_intents_created_total",
		Help: "Payment intents created with the gateway.",
	}),
	IntentsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: pre + "payment_intents_rejected_total",
		Help: "Payment intent attempts refused before or by the gateway, by error kind.",
	}, []string{"kind"}),
	PurchasesConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
		Name: pre + "purchases_confirmed_total",
		Help: "Purchases moved from pending to completed.",
	}),
	PurchasesFailed: prometheus.NewCounter(prometheus.CounterOpts{
		Name: pre + "purchases_failed_total",
		Help: "Purchases moved to failed, including expired intents.",
	}),
	Downloads: prometheus.NewCounter(prometheus.CounterOpts{
		Name: pre + "dataset_downloads_total",
		Help: "Authorized dataset downloads.",
	}),
	ProposalsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
		Name: pre + "proposals_submitted_total",
		Help: "Proposals submitted against requests.",
	}),
	ProposalsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
		Name: pre + "proposals_accepted_total",
		Help: "Proposals accepted by request owners.",
	}),
	DatasetsCreated: prometheus.NewCounter(prometheus.CounterOpts{
		Name: pre + "datasets_created_total",
		Help: "Datasets listed by sellers.",
	}),
	EventPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
		Name: pre + "event_publish_errors_total",
		Help: "Market events that could not be handed to the publisher.",
	}),
}

// HTTP groups request-level metrics for the API.
var HTTP = struct {
	Requests    *prometheus.CounterVec
	RateLimited prometheus.Counter
}{
	Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: pre + "http_requests_total",
		Help: "API requests by route and status code.",
	}, []string{"route", "code"}),
	RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
		Name: pre + "http_rate_limited_total",
		Help: "API requests refused by the rate limiter.",
	}),
}

func init() {
	prometheus.MustRegister(
		Market.IntentsCreated,
		Market.IntentsRejected,
		Market.PurchasesConfirmed,
		Market.PurchasesFailed,
		Market.Downloads,
		Market.ProposalsSubmitted,
		Market.ProposalsAccepted,
		Market.DatasetsCreated,
		Market.EventPublishErrors,
		HTTP.Requests,
		HTTP.RateLimited,
	)
}
