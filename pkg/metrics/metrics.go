// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes Prometheus counters for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngressBytes counts payload bytes received from clients.
	IngressBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "atticfs",
		Name:      "ingress_bytes_total",
		Help:      "Total payload bytes written by clients.",
	})

	// EgressBytes counts payload bytes returned to clients.
	EgressBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "atticfs",
		Name:      "egress_bytes_total",
		Help:      "Total payload bytes read by clients.",
	})

	// BucketCount tracks the number of buckets.
	BucketCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "atticfs",
		Name:      "buckets",
		Help:      "Current number of buckets.",
	})

	// ObjectCount tracks the number of live objects.
	ObjectCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "atticfs",
		Name:      "objects",
		Help:      "Current number of live objects.",
	})

	// ChannelRequests counts calls against the external platform by kind.
	ChannelRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atticfs",
		Name:      "channel_requests_total",
		Help:      "Total requests issued to the attachment platform.",
	}, []string{"kind"})

	// LinkRefreshes counts link refresh runs by outcome.
	LinkRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atticfs",
		Name:      "link_refreshes_total",
		Help:      "Total attachment link refresh runs.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "atticfs",
		Name:      "channel_request_rate",
		Help:      "Platform requests per second over the last 60 seconds.",
	}, ChannelRate.Rate))
}
