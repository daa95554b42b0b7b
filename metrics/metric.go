package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "circlefeed"

var (
	Registry = prometheus.NewRegistry()

	// BucketDeliveries counts post copies written to buckets by kind and status.
	BucketDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bucket_deliveries_total",
		Help:      "Post copies delivered to feed and wall buckets.",
	}, []string{"kind", "status"})

	CommentPropagations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "comment_propagations_total",
		Help:      "Comment appends applied to cached post copies.",
	}, []string{"status"})

	TruncatedComments = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "truncated_comments_total",
		Help:      "Comments popped from cached copies by the truncation sweep.",
	})

	TaskRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fanout_task_runs_total",
		Help:      "Outbox task executions by kind and resulting status.",
	}, []string{"kind", "status"})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dispatch_queue_depth",
		Help:      "Jobs waiting in the async dispatcher.",
	})

	FanoutDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fanout_duration_seconds",
		Help:      "Time spent executing one outbox task.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	}, []string{"kind"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		BucketDeliveries,
		CommentPropagations,
		TruncatedComments,
		TaskRuns,
		QueueDepth,
		FanoutDuration,
	)
}
