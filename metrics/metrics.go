package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stepflow-dev/stepflow/types"
)

const (
	MetricsNamespace = "stepflow"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	scenariosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "scenarios_total",
		Help:      "Count of executed scenarios",
	}, []string{
		"run_id",
		"feature",
		"result",
	})

	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "steps_total",
		Help:      "Count of executed steps",
	}, []string{
		"run_id",
		"result",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of execution runs",
	}, []string{
		"run_id",
		"result",
	})

	runScenarioCounts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_scenario_counts",
		Help:      "Scenario counts of the last run by outcome",
	}, []string{
		"run_id",
		"outcome",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of execution runs",
	}, []string{
		"run_id",
	})

	workerReplacements = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "worker_replacements_total",
		Help:      "Count of workers terminated and replaced",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordScenario counts one finished scenario execution.
func RecordScenario(runID, feature string, result types.Status) {
	if Debug {
		log.Debug("metric inc",
			"m", "scenarios_total",
			"run_id", runID,
			"feature", feature,
			"result", result)
	}
	scenariosTotal.WithLabelValues(runID, feature, string(result)).Inc()
}

// RecordStep counts one finished step execution.
func RecordStep(runID string, result types.Status) {
	stepsTotal.WithLabelValues(runID, string(result)).Inc()
}

// RecordWorkerReplacement counts a terminated-and-replaced worker.
func RecordWorkerReplacement() {
	workerReplacements.Inc()
}

// RecordRun publishes the aggregate outcome of one run.
func RecordRun(runID string, summary *types.ExecutionSummary) {
	runResults.WithLabelValues(runID, string(summary.Status)).Set(1)
	runScenarioCounts.WithLabelValues(runID, "total").Set(float64(summary.Scenarios.Total))
	runScenarioCounts.WithLabelValues(runID, "passed").Set(float64(summary.Scenarios.Passed))
	runScenarioCounts.WithLabelValues(runID, "failed").Set(float64(summary.Scenarios.Failed))
	runScenarioCounts.WithLabelValues(runID, "skipped").Set(float64(summary.Scenarios.Skipped))
	runScenarioCounts.WithLabelValues(runID, "pending").Set(float64(summary.Scenarios.Pending))
	runDuration.WithLabelValues(runID).Set(summary.Duration.Seconds())

	if Debug {
		log.Debug("metric set",
			"m", "run_results",
			"run_id", runID,
			"result", summary.Status,
			"duration", summary.Duration)
	}
}

// RecordRunDuration publishes a run duration without a full summary.
func RecordRunDuration(runID string, d time.Duration) {
	runDuration.WithLabelValues(runID).Set(d.Seconds())
}
