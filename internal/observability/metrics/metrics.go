package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "vibelux_"

	resultSuccess = "success"
	resultError   = "error"
)

// Result labels for Observe helpers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)

var (
	registerOnce sync.Once

	ingestReadings *prometheus.CounterVec
	ingestRejects  *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	connectorPolls    *prometheus.CounterVec
	connectorFailures *prometheus.CounterVec

	baselineComputeTotal   *prometheus.CounterVec
	baselineComputeLatency *prometheus.HistogramVec

	savingsComputeTotal *prometheus.CounterVec

	invoiceGenerateTotal   *prometheus.CounterVec
	invoiceGenerateLatency *prometheus.HistogramVec
	invoiceExportTotal     *prometheus.CounterVec

	scheduleCreateTotal  *prometheus.CounterVec
	schedulePreemptions  prometheus.Counter
	sweepTransitions     *prometheus.CounterVec
	sweepLatency         prometheus.Histogram
	activeSchedulesGauge prometheus.GaugeFunc
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestReadings = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_readings_total",
				Help: "Total ingested readings by outcome",
			},
			[]string{"outcome"},
		)
		ingestRejects = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_rejects_total",
				Help: "Total rejected readings by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest batch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		connectorPolls = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "connector_polls_total",
				Help: "Total connector polls by result",
			},
			[]string{"result"},
		)
		connectorFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "connector_failures_total",
				Help: "Total connector failures by integration",
			},
			[]string{"integration"},
		)

		baselineComputeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "baseline_compute_total",
				Help: "Total baseline computations by result",
			},
			[]string{"result"},
		)
		baselineComputeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "baseline_compute_latency_seconds",
				Help:    "Baseline computation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		savingsComputeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "savings_compute_total",
				Help: "Total savings computations by result",
			},
			[]string{"result"},
		)

		invoiceGenerateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_generate_total",
				Help: "Total invoice generate operations by result",
			},
			[]string{"result"},
		)
		invoiceGenerateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "invoice_generate_latency_seconds",
				Help:    "Invoice generate latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		invoiceExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_export_total",
				Help: "Total invoice exports by format",
			},
			[]string{"format"},
		)

		scheduleCreateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "schedule_create_total",
				Help: "Total curtailment schedule creations by result",
			},
			[]string{"result"},
		)
		schedulePreemptions = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "schedule_preemptions_total",
				Help: "Total schedules preempted by higher-priority requests",
			},
		)
		sweepTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sweep_transitions_total",
				Help: "Total schedule transitions applied by the sweep",
			},
			[]string{"transition"},
		)
		sweepLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "sweep_latency_seconds",
				Help:    "Curtailment sweep latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)

		collectors := []prometheus.Collector{
			ingestReadings, ingestRejects, ingestLatency,
			connectorPolls, connectorFailures,
			baselineComputeTotal, baselineComputeLatency,
			savingsComputeTotal,
			invoiceGenerateTotal, invoiceGenerateLatency, invoiceExportTotal,
			scheduleCreateTotal, schedulePreemptions, sweepTransitions, sweepLatency,
		}

		if db != nil {
			activeSchedulesGauge = prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: metricPrefix + "active_schedules",
					Help: "Curtailment schedules currently active",
				},
				func() float64 {
					var count int
					row := db.QueryRow(`SELECT COUNT(*) FROM load_shedding_schedules WHERE status = 'active'`)
					if err := row.Scan(&count); err != nil {
						return 0
					}
					return float64(count)
				},
			)
			collectors = append(collectors, activeSchedulesGauge)
		}

		for _, collector := range collectors {
			if err := prometheus.Register(collector); err != nil {
				if logger != nil {
					logger.Printf("metrics register error: %v", err)
				}
			}
		}
	})
}

// AddIngested records accepted/deduped reading counts.
func AddIngested(outcome string, count int) {
	if ingestReadings != nil && count > 0 {
		ingestReadings.WithLabelValues(outcome).Add(float64(count))
	}
}

// AddRejected records per-item validation rejections.
func AddRejected(reason string, count int) {
	if ingestRejects != nil && count > 0 {
		ingestRejects.WithLabelValues(reason).Add(float64(count))
	}
}

// ObserveIngest records an ingest batch.
func ObserveIngest(result string, elapsed time.Duration) {
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(elapsed.Seconds())
	}
}

// IncConnectorPoll records a connector poll result.
func IncConnectorPoll(result string) {
	if connectorPolls != nil {
		connectorPolls.WithLabelValues(result).Inc()
	}
}

// IncConnectorFailure records a connector failure for an integration.
func IncConnectorFailure(integrationID string) {
	if connectorFailures != nil {
		connectorFailures.WithLabelValues(integrationID).Inc()
	}
}

// ObserveBaselineCompute records a baseline computation.
func ObserveBaselineCompute(result string, elapsed time.Duration) {
	if baselineComputeTotal != nil {
		baselineComputeTotal.WithLabelValues(result).Inc()
	}
	if baselineComputeLatency != nil {
		baselineComputeLatency.WithLabelValues(result).Observe(elapsed.Seconds())
	}
}

// IncSavingsCompute records a savings computation result.
func IncSavingsCompute(result string) {
	if savingsComputeTotal != nil {
		savingsComputeTotal.WithLabelValues(result).Inc()
	}
}

// ObserveInvoiceGenerate records an invoice generation.
func ObserveInvoiceGenerate(result string, elapsed time.Duration) {
	if invoiceGenerateTotal != nil {
		invoiceGenerateTotal.WithLabelValues(result).Inc()
	}
	if invoiceGenerateLatency != nil {
		invoiceGenerateLatency.WithLabelValues(result).Observe(elapsed.Seconds())
	}
}

// IncInvoiceExport records an invoice export.
func IncInvoiceExport(format string) {
	if invoiceExportTotal != nil {
		invoiceExportTotal.WithLabelValues(format).Inc()
	}
}

// IncScheduleCreate records a schedule creation result.
func IncScheduleCreate(result string) {
	if scheduleCreateTotal != nil {
		scheduleCreateTotal.WithLabelValues(result).Inc()
	}
}

// IncPreemption records a preempted schedule.
func IncPreemption() {
	if schedulePreemptions != nil {
		schedulePreemptions.Inc()
	}
}

// IncSweepTransition records a sweep-applied status transition.
func IncSweepTransition(transition string) {
	if sweepTransitions != nil {
		sweepTransitions.WithLabelValues(transition).Inc()
	}
}

// ObserveSweep records a sweep iteration.
func ObserveSweep(elapsed time.Duration) {
	if sweepLatency != nil {
		sweepLatency.Observe(elapsed.Seconds())
	}
}
