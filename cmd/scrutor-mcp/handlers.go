package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// handleSubmitJob implements the submit_job tool
func handleSubmitJob(queue interfaces.JobQueueManager, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		documentID, err := request.RequireString("document_id")
		if err != nil || documentID == "" {
			return textResult("Error: document_id parameter is required"), nil
		}
		userID, err := request.RequireString("user_id")
		if err != nil || userID == "" {
			return textResult("Error: user_id parameter is required"), nil
		}

		priority := request.GetInt("priority", models.PriorityNormal)
		if !models.IsValidPriority(priority) {
			return textResult(fmt.Sprintf("Error: priority %d outside supported range", priority)), nil
		}

		metadata := map[string]interface{}{"source": "mcp"}
		if pipelineID := request.GetString("pipeline_id", ""); pipelineID != "" {
			metadata["pipeline_id"] = pipelineID
		}

		jobID, err := queue.CreateJob(ctx, documentID, userID, priority, metadata)
		if err != nil {
			logger.Error().Err(err).Str("document_id", documentID).Msg("Job submission failed")
			return textResult(fmt.Sprintf("Submit error: %v", err)), nil
		}

		return textResult(fmt.Sprintf("Job submitted: %s (document %s, priority %d)", jobID, documentID, priority)), nil
	}
}

// handleJobStatus implements the job_status tool
func handleJobStatus(queue interfaces.JobQueueManager, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return textResult("Error: job_id parameter is required"), nil
		}

		job, ok := queue.GetJob(ctx, jobID)
		if !ok {
			return textResult(fmt.Sprintf("Job not found: %s", jobID)), nil
		}

		return textResult(formatJob(job)), nil
	}
}

// handleCancelJob implements the cancel_job tool
func handleCancelJob(queue interfaces.JobQueueManager, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return textResult("Error: job_id parameter is required"), nil
		}
		reason := request.GetString("reason", "cancelled via mcp")

		if !queue.CancelJob(ctx, jobID, reason) {
			return textResult(fmt.Sprintf("Job %s could not be cancelled (unknown or already terminal)", jobID)), nil
		}
		return textResult(fmt.Sprintf("Job cancelled: %s", jobID)), nil
	}
}

// handleListJobs implements the list_jobs tool
func handleListJobs(queue interfaces.JobQueueManager, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 20)
		if limit > 100 {
			limit = 100
		}

		jobs, err := queue.ListJobs(ctx, &interfaces.JobListOptions{
			Status: request.GetString("status", ""),
			UserID: request.GetString("user_id", ""),
			Limit:  limit,
		})
		if err != nil {
			logger.Error().Err(err).Msg("Job listing failed")
			return textResult(fmt.Sprintf("List error: %v", err)), nil
		}

		return textResult(formatJobList(jobs)), nil
	}
}

// handleQueueStats implements the queue_stats tool
func handleQueueStats(queue interfaces.JobQueueManager, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return textResult(formatQueueStats(queue.Stats(ctx))), nil
	}
}

// handleJobLogs implements the job_logs tool
func handleJobLogs(jobLogs interfaces.JobLogStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return textResult("Error: job_id parameter is required"), nil
		}
		limit := request.GetInt("limit", 100)

		entries, err := jobLogs.GetLogs(ctx, jobID, limit)
		if err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("Job log fetch failed")
			return textResult(fmt.Sprintf("Log fetch error: %v", err)), nil
		}

		return textResult(formatJobLogs(jobID, entries)), nil
	}
}

// handleListPipelines implements the list_pipelines tool
func handleListPipelines(pipelines interfaces.PipelineStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		defs, err := pipelines.ListPipelines(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Pipeline listing failed")
			return textResult(fmt.Sprintf("List error: %v", err)), nil
		}

		return textResult(formatPipelines(defs)), nil
	}
}

// handleGetDocument implements the get_document tool
func handleGetDocument(docs interfaces.DocumentStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		documentID, err := request.RequireString("document_id")
		if err != nil || documentID == "" {
			return textResult("Error: document_id parameter is required"), nil
		}

		doc, err := docs.GetDocument(ctx, documentID)
		if err != nil {
			logger.Error().Err(err).Str("document_id", documentID).Msg("Document fetch failed")
			return textResult(fmt.Sprintf("Document not found: %v", err)), nil
		}

		return textResult(formatDocument(doc)), nil
	}
}
