package metrics

import (
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket presets.
var (
	fastBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 1}
	mergeBuckets = []float64{0.25, 0.5, 0.75, 1, 1.25, 1.5, 2, 2.5, 3, 4}
)

// --- Node Info ---

var NodeInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "rlmd_node_info",
	Help: "Node information (always 1)",
}, []string{"name", "version"})

var NodeStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "rlmd_node_start_time_seconds",
	Help: "Start timestamp",
})

// --- Fork-Choice ---

var HeadSlot = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "rlmd_head_slot",
	Help: "Slot of the current GHOST head",
})

var CurrentSlot = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "rlmd_current_slot",
	Help: "Current clock slot",
})

var ConfirmedSlot = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "rlmd_confirmed_slot",
	Help: "Highest confirmed ancestor slot of head",
})

var VotesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "rlmd_votes_received_total",
	Help: "Total number of votes received, by delivery path",
}, []string{"source"})

var VoteValidationTime = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "rlmd_vote_validation_time_seconds",
	Help:    "Time taken to validate a vote",
	Buckets: fastBuckets,
})

// --- FFG ---

var LatestJustifiedSlot = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "rlmd_latest_justified_slot",
	Help: "Checkpoint slot of the greatest justified checkpoint",
})

var LatestFinalizedSlot = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "rlmd_latest_finalized_slot",
	Help: "Checkpoint slot of the greatest finalized checkpoint",
})

// --- View-Merge ---

var BufferedBlocks = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "rlmd_buffered_blocks",
	Help: "Blocks staged in the view-merge buffer",
})

var BufferedVotes = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "rlmd_buffered_votes",
	Help: "Votes staged in the view-merge buffer",
})

var ViewMergeTime = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "rlmd_view_merge_time_seconds",
	Help:    "Time to execute the MERGE-phase view merge and cache recomputation",
	Buckets: mergeBuckets,
})

// --- Slashing ---

var SlashableNodes = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "rlmd_slashable_nodes",
	Help: "Senders currently implicated in an equivocation or surround pair",
})

// --- Validator ---

var ValidatorsCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "rlmd_validators_count",
	Help: "Number of validators managed by a node",
})

var SigningTime = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "rlmd_signing_time_seconds",
	Help:    "Time to produce a single signature",
	Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
})

// --- Network ---

var ConnectedPeers = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "rlmd_connected_peers",
	Help: "Number of connected peers",
})

var AggregateSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "rlmd_aggregate_size_bytes",
	Help: "Size in bytes of the latest aggregated vote payload",
})

func init() {
	prometheus.MustRegister(
		// Node info
		NodeInfo,
		NodeStartTime,
		// Fork choice
		HeadSlot,
		CurrentSlot,
		ConfirmedSlot,
		VotesReceived,
		VoteValidationTime,
		// FFG
		LatestJustifiedSlot,
		LatestFinalizedSlot,
		// View merge
		BufferedBlocks,
		BufferedVotes,
		ViewMergeTime,
		// Slashing
		SlashableNodes,
		// Validator
		ValidatorsCount,
		SigningTime,
		// Network
		ConnectedPeers,
		AggregateSizeBytes,
	)
}

// Serve starts the Prometheus metrics HTTP server on the given port.
func Serve(port int) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), nil); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()
}
