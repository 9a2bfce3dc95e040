package xfer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	pathLocal  = "local"
	pathPack   = "pack"
	pathUnpack = "unpack"
)

var (
	transactionsAllocated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amrsync_transactions_allocated_total",
		Help: "Transactions allocated by semantic",
	}, []string{"semantic"})

	transactionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amrsync_transactions_executed_total",
		Help: "Transactions executed by semantic and path (local, pack, unpack)",
	}, []string{"semantic", "path"})

	streamBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amrsync_stream_bytes_total",
		Help: "Bytes packed for sending or unpacked after receiving",
	}, []string{"direction"})

	scheduleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "amrsync_schedule_execute_seconds",
		Help:    "Schedule execution time in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
)
