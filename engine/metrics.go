package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var walAppends = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bplus_engine_wal_appends_total",
	Help: "Number of operations written to the write-ahead log",
}, []string{"op"})

var replayedOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bplus_engine_replayed_ops_total",
	Help: "Number of logged operations replayed during open",
}, []string{"result"})

var checkpoints = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bplus_engine_checkpoints_total",
	Help: "Number of checkpoints attempted",
}, []string{"result"})

var checkpointLSN = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "bplus_engine_checkpoint_lsn",
	Help: "LSN covered by the most recent checkpoint",
})
