package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createSubmitJobTool returns the submit_job tool definition
func createSubmitJobTool() mcp.Tool {
	return mcp.NewTool("submit_job",
		mcp.WithDescription("Submit an analysis job for a stored document"),
		mcp.WithString("document_id",
			mcp.Required(),
			mcp.Description("Document ID (format: doc_{uuid})"),
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User the job belongs to"),
		),
		mcp.WithNumber("priority",
			mcp.Description("Priority band 1 (low) to 4 (critical), default 2"),
		),
		mcp.WithString("pipeline_id",
			mcp.Description("Pipeline definition to run (default pipeline when omitted)"),
		),
	)
}

// createJobStatusTool returns the job_status tool definition
func createJobStatusTool() mcp.Tool {
	return mcp.NewTool("job_status",
		mcp.WithDescription("Get the current status and progress of a job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID (format: job_{uuid})"),
		),
	)
}

// createCancelJobTool returns the cancel_job tool definition
func createCancelJobTool() mcp.Tool {
	return mcp.NewTool("cancel_job",
		mcp.WithDescription("Cancel a queued or processing job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID to cancel"),
		),
		mcp.WithString("reason",
			mcp.Description("Cancellation reason recorded on the job"),
		),
	)
}

// createListJobsTool returns the list_jobs tool definition
func createListJobsTool() mcp.Tool {
	return mcp.NewTool("list_jobs",
		mcp.WithDescription("List jobs, optionally filtered by status or user"),
		mcp.WithString("status",
			mcp.Description("Filter: queued, processing, completed, failed, cancelled"),
		),
		mcp.WithString("user_id",
			mcp.Description("Filter by owning user"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20, max: 100)"),
		),
	)
}

// createQueueStatsTool returns the queue_stats tool definition
func createQueueStatsTool() mcp.Tool {
	return mcp.NewTool("queue_stats",
		mcp.WithDescription("Get queue depth, active counts, and completion totals"),
	)
}

// createJobLogsTool returns the job_logs tool definition
func createJobLogsTool() mcp.Tool {
	return mcp.NewTool("job_logs",
		mcp.WithDescription("Fetch the append-only log for a job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID to fetch logs for"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max log lines (default: 100)"),
		),
	)
}

// createListPipelinesTool returns the list_pipelines tool definition
func createListPipelinesTool() mcp.Tool {
	return mcp.NewTool("list_pipelines",
		mcp.WithDescription("List stored pipeline definitions with their tasks and schedules"),
	)
}

// createGetDocumentTool returns the get_document tool definition
func createGetDocumentTool() mcp.Tool {
	return mcp.NewTool("get_document",
		mcp.WithDescription("Retrieve a stored document and its extracted content"),
		mcp.WithString("document_id",
			mcp.Required(),
			mcp.Description("Document ID (format: doc_{uuid})"),
		),
	)
}
