package services

import "github.com/prometheus/client_golang/prometheus"

var reportGenerations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "report_generations_total",
		Help: "On-demand report generations by outcome (created, replayed, or error kind).",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(reportGenerations)
}
