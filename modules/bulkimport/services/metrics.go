package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulkimport_runs_uploaded_total",
		Help: "Import runs created by document upload.",
	})
	runsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulkimport_runs_finalized_total",
		Help: "Import runs successfully finalized.",
	})
	itemsReviewed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkimport_items_reviewed_total",
		Help: "Review transitions applied to extracted items.",
	}, []string{"action"})
	extractionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkimport_extraction_runs_total",
		Help: "Extraction pipeline outcomes by terminal status.",
	}, []string{"status"})
)
