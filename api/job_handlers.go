package api

import (
	stdErrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/go-autocomplete/internal/engine"
	"github.com/gcbaptista/go-autocomplete/internal/errors"
	"github.com/gcbaptista/go-autocomplete/model"
	"github.com/gcbaptista/go-autocomplete/services"
)

// GetJobHandler handles requests to get job status by ID
func (api *API) GetJobHandler(c *gin.Context) {
	jobID := c.Param("jobId")

	if jobManager, ok := api.engine.(services.JobManager); ok {
		job, err := jobManager.GetJob(jobID)
		if err != nil {
			if stdErrors.Is(err, errors.ErrJobNotFound) {
				SendJobNotFoundError(c, jobID)
				return
			}
			SendInternalError(c, "get job", err)
			return
		}

		c.JSON(http.StatusOK, job)
	} else {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Job management not supported by this engine"})
	}
}

// ListJobsHandler handles requests to list jobs
func (api *API) ListJobsHandler(c *gin.Context) {
	statusParam := c.Query("status")

	var statusFilter *model.JobStatus
	if statusParam != "" {
		status := model.JobStatus(statusParam)
		statusFilter = &status
	}

	if jobManager, ok := api.engine.(services.JobManager); ok {
		jobs := jobManager.ListJobs(statusFilter)
		c.JSON(http.StatusOK, gin.H{
			"jobs":  jobs,
			"total": len(jobs),
		})
	} else {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Job management not supported by this engine"})
	}
}

// GetJobMetricsHandler handles requests to get job performance metrics
func (api *API) GetJobMetricsHandler(c *gin.Context) {
	if engineWithMetrics, ok := api.engine.(*engine.Engine); ok {
		metrics := engineWithMetrics.GetJobMetrics()

		// Add computed metrics
		response := gin.H{
			"metrics":          metrics,
			"success_rate":     engineWithMetrics.GetJobSuccessRate(),
			"current_workload": engineWithMetrics.GetCurrentWorkload(),
		}

		c.JSON(http.StatusOK, response)
	} else {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Job metrics not supported by this engine"})
	}
}

// TriggerReconcileHandler starts a reconcile pass over unconfirmed phrases
func (api *API) TriggerReconcileHandler(c *gin.Context) {
	reconciler, ok := api.engine.(services.Reconciler)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Reconciliation not supported by this engine"})
		return
	}

	jobID, err := reconciler.TriggerReconcile()
	if err != nil {
		SendJobExecutionError(c, "reconcile", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"message": "Reconcile pass started",
		"job_id":  jobID,
	})
}
