package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moneybook",
			Name:      "transactions_written_total",
			Help:      "Successful transaction writes by operation.",
		},
		[]string{"op"},
	)

	orphanBlobsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "moneybook",
			Name:      "orphan_blobs_enqueued_total",
			Help:      "Blobs whose in-line deletion failed and were queued for retry.",
		},
	)
)
