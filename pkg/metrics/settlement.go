package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var settlementOpDur = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: "settlement",
		Name:      "op_dur_ms",
		Help:      "Settlement operation latency in milliseconds, partitioned by operation and outcome.",
		Buckets:   HistogramBuckets,
	},
	[]string{"op", "outcome"},
)

func init() {
	prometheus.MustRegister(settlementOpDur)
}

// ObserveSettlementOp records one settlement operation. outcome is a coarse
// label ("ok", "error", ...), never an error message.
func ObserveSettlementOp(op, outcome string, start time.Time) {
	settlementOpDur.WithLabelValues(op, outcome).Observe(float64(time.Since(start).Milliseconds()))
}
