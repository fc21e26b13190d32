package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	// QueueJobsReceived 任务队列相关
	QueueJobsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_queue_jobs_received_total",
			Help: "Total number of jobs received by the queue consumer.",
		},
		[]string{"job_type"},
	)
	QueueJobsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_queue_jobs_dropped_total",
			Help: "Total number of jobs dropped because the queue was full or attempts were exhausted.",
		},
		[]string{"job_type"},
	)
	QueueWorkerJobsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_queue_worker_dispatch_count_total",
			Help: "Number of jobs assigned to each queue worker.",
		},
		[]string{"worker_id"},
	)
	QueueJobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_queue_jobs_processed_total",
			Help: "Total number of jobs processed, by job type and status.",
		},
		[]string{"job_type", "status"},
	)
	QueueJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "radar_queue_job_duration_seconds",
			Help:    "Time taken to handle a job.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"job_type"},
	)

	// IngestionEvents 拉取相关，result: inserted / duplicate / invalid / failed
	IngestionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_ingestion_events_total",
			Help: "Transfers seen by the ingestion job, by outcome.",
		},
		[]string{"chain", "result"},
	)
	IngestionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_ingestion_errors_total",
			Help: "Per-chain or per-token ingestion failures, by stage.",
		},
		[]string{"chain", "stage"},
	)
	IngestionTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "radar_ingestion_tick_duration_seconds",
			Help:    "Duration of one ingestion tick over all chains.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)
	IngestionTicksSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "radar_ingestion_ticks_skipped_total",
			Help: "Ticks skipped because the previous tick was still running.",
		},
	)

	// RuleTriggered 规则引擎相关
	RuleTriggered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_rule_triggered_total",
			Help: "Number of times each rule triggered.",
		},
		[]string{"rule"},
	)
	RuleGuarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_rule_guarded_total",
			Help: "Number of rule evaluations suppressed for missing inputs.",
		},
		[]string{"rule"},
	)
	EvaluationSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_evaluation_skipped_total",
			Help: "Evaluations terminated before rules ran, by reason.",
		},
		[]string{"reason"},
	)
	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "radar_evaluation_duration_seconds",
			Help:    "Time taken to evaluate one event.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0},
		},
	)
	SignalsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_signals_created_total",
			Help: "Signals persisted, by tier and source.",
		},
		[]string{"tier", "source"},
	)

	// ScannerWalletsChecked 钱包扫描相关
	ScannerWalletsChecked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_scanner_wallets_checked_total",
			Help: "Candidate wallets measured by the accumulation scanner.",
		},
		[]string{"chain"},
	)

	// AlertsDispatched 告警相关，status: queued / suppressed / sent / failed
	AlertsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_alerts_total",
			Help: "User alerts by dispatch status.",
		},
		[]string{"status"},
	)

	// AsyncWriterMessagesQueued AsyncWriter 指标
	AsyncWriterMessagesQueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "async_writer_messages_queued_total",
			Help: "Total number of messages queued to async writer.",
		},
		[]string{"writer_id"},
	)
	AsyncWriterMessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "async_writer_messages_dropped_total",
			Help: "Total number of messages dropped due to full queue.",
		},
		[]string{"writer_id"},
	)
	AsyncWriterBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "async_writer_batch_size",
			Help:    "Number of items in each batch submitted to the writer.",
			Buckets: []float64{10, 50, 100, 200, 500, 1000},
		},
		[]string{"writer_id"},
	)
	AsyncWriterFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "async_writer_flush_duration_seconds",
			Help:    "Time taken to flush a batch.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"writer_id"},
	)
	AsyncWriterFlushErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "async_writer_flush_errors_total",
			Help: "Total number of failed batch flushes.",
		},
		[]string{"writer_id"},
	)
)

func init() {
	prometheus.MustRegister(
		// 任务队列
		QueueJobsReceived,
		QueueJobsDropped,
		QueueWorkerJobsDispatched,
		QueueJobsProcessed,
		QueueJobDuration,

		// 拉取
		IngestionEvents,
		IngestionErrors,
		IngestionTickDuration,
		IngestionTicksSkipped,

		// 规则引擎
		RuleTriggered,
		RuleGuarded,
		EvaluationSkipped,
		EvaluationDuration,
		SignalsCreated,

		ScannerWalletsChecked,
		AlertsDispatched,

		// async 写入指标
		AsyncWriterMessagesQueued,
		AsyncWriterMessagesDropped,
		AsyncWriterBatchSize,
		AsyncWriterFlushDuration,
		AsyncWriterFlushErrors,
	)
}
