package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CollectionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "popularity_collection_runs_total",
		Help: "The total number of finished collection runs",
	}, []string{"job", "status"})

	CollectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "popularity_collection_rejected_total",
		Help: "Collection triggers rejected because a run was already in progress",
	}, []string{"job"})

	CollectionRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "popularity_collection_run_duration_seconds",
		Help:    "Duration of collection runs",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
	}, []string{"job"})

	CollectionInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "popularity_collection_in_progress",
		Help: "1 while this process executes a collection run",
	})

	SourceRecordsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "popularity_source_records_fetched_total",
		Help: "Raw records fetched per source",
	}, []string{"source"})

	SourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "popularity_source_failures_total",
		Help: "Adapter fetches that ended with an error, by outcome",
	}, []string{"source", "outcome"})

	SourceFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "popularity_source_fetch_duration_seconds",
		Help:    "Duration of a full adapter fetch",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	MalformedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "popularity_malformed_records_total",
		Help: "Raw records dropped by normalization",
	}, []string{"source"})

	EntitiesMerged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "popularity_entities_merged_total",
		Help: "Observations resolved to entities, by outcome",
	}, []string{"outcome"})

	MergeConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "popularity_merge_conflicts_total",
		Help: "Observations whose identifier and title matched different entities",
	})

	SnapshotsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "popularity_snapshots_written_total",
		Help: "Score snapshots appended, by kind",
	}, []string{"kind"})

	DivergentEntities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "popularity_divergent_entities",
		Help: "Entities with a geographic divergence above threshold at the last sweep",
	})

	StaleRunsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "popularity_stale_runs_recovered_total",
		Help: "Runs left running by a crashed process and marked failed",
	})

	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "popularity_api_requests_total",
		Help: "API requests by route and status code",
	}, []string{"route", "code"})
)
