// SPDX-License-Identifier: GPL-3.0-or-later
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mailstore"

var (
	FetchedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetched_records_total",
		Help:      "Messages received from the server, by body selector.",
	}, []string{"selector"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Duration of range fetches including decoding, by body selector.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"selector"})

	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_errors_total",
		Help:      "Failed fetches, by reason.",
	}, []string{"reason"})

	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decode_failures_total",
		Help:      "Messages that could not be decoded.",
	})

	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_state_transitions_total",
		Help:      "Session state changes, by target state.",
	}, []string{"state"})
)
