package bplus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bplus_operations_total",
	Help: "The total number of b+ tree operations",
}, []string{"op", "result"})

var splits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bplus_splits_total",
	Help: "The total number of node splits",
}, []string{"kind"})

var rotations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bplus_rotations_total",
	Help: "The total number of sibling rotations during rebalancing",
}, []string{"kind"})

var merges = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bplus_merges_total",
	Help: "The total number of sibling merges during rebalancing",
}, []string{"kind"})

var rootChanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bplus_root_changes_total",
	Help: "The total number of times the root grew or collapsed",
}, []string{"change"})

var nodeAllocFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "bplus_node_alloc_failures_total",
	Help: "The total number of node allocations refused by the arena cap",
})

var pageCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bplus_page_cache_requests_total",
	Help: "Buffer pool page lookups",
}, []string{"status"})

// observe records the outcome of a public operation.
func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operations.WithLabelValues(op, result).Inc()
}
