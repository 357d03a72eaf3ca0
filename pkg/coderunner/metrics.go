package coderunner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codemeet",
		Subsystem: "coderunner",
		Name:      "runs_total",
		Help:      "Code runs by language and outcome",
	}, []string{"language", "outcome"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "codemeet",
		Subsystem: "coderunner",
		Name:      "run_duration_seconds",
		Help:      "Wall time of a whole test batch",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"language"})

	testCasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codemeet",
		Subsystem: "coderunner",
		Name:      "test_cases_total",
		Help:      "Graded test cases by language and result",
	}, []string{"language", "result"})
)

func observeRun(lang string, report RunReport) {
	outcome := "completed"
	if report.ErrorKind != "" {
		outcome = string(report.ErrorKind)
	}
	runsTotal.WithLabelValues(lang, outcome).Inc()
	runDuration.WithLabelValues(lang).Observe(report.Duration.Seconds())
	for _, result := range report.Results {
		switch {
		case result.Error != "":
			testCasesTotal.WithLabelValues(lang, "error").Inc()
		case result.Passed:
			testCasesTotal.WithLabelValues(lang, "passed").Inc()
		default:
			testCasesTotal.WithLabelValues(lang, "failed").Inc()
		}
	}
}
