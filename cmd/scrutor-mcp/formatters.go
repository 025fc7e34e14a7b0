package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/scrutor/internal/models"
)

// formatJob formats one job's status as markdown
func formatJob(job *models.Job) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Job %s\n\n", job.ID))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("**Document:** %s\n", job.DocumentID))
	sb.WriteString(fmt.Sprintf("**User:** %s\n", job.UserID))
	sb.WriteString(fmt.Sprintf("**Priority:** %d\n", job.Priority))
	if job.PipelineID != "" {
		sb.WriteString(fmt.Sprintf("**Pipeline:** %s\n", job.PipelineID))
	}
	sb.WriteString(fmt.Sprintf("**Progress:** %.0f%%", job.ProgressPercentage))
	if job.CurrentStage != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", job.CurrentStage))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("**Created:** %s\n", job.CreatedAt.Format(time.RFC3339)))
	if job.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("**Completed:** %s\n", job.CompletedAt.Format(time.RFC3339)))
	}
	if job.Error != "" {
		sb.WriteString(fmt.Sprintf("**Error:** %s\n", job.Error))
	}
	if len(job.Results) > 0 {
		resultsJSON, _ := json.MarshalIndent(job.Results, "", "  ")
		sb.WriteString(fmt.Sprintf("\n## Results\n\n```json\n%s\n```\n", string(resultsJSON)))
	}
	return sb.String()
}

// formatJobList formats a job listing as a markdown table
func formatJobList(jobs []*models.Job) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Jobs (%d)\n\n", len(jobs)))

	if len(jobs) == 0 {
		sb.WriteString("No jobs found.\n")
		return sb.String()
	}

	sb.WriteString("| ID | Status | Progress | Document | User | Created |\n")
	sb.WriteString("|----|--------|----------|----------|------|--------|\n")
	for _, job := range jobs {
		sb.WriteString(fmt.Sprintf("| %s | %s | %.0f%% | %s | %s | %s |\n",
			job.ID, job.Status, job.ProgressPercentage,
			job.DocumentID, job.UserID, job.CreatedAt.Format(time.RFC3339)))
	}
	return sb.String()
}

// formatQueueStats formats queue statistics as markdown
func formatQueueStats(stats models.QueueStats) string {
	var sb strings.Builder
	sb.WriteString("## Queue Statistics\n\n")
	sb.WriteString(fmt.Sprintf("**Queued:** %d\n", stats.QueuedTotal))
	sb.WriteString(fmt.Sprintf("**Active:** %d\n", stats.ActiveCount))
	sb.WriteString(fmt.Sprintf("**Completed:** %d\n", stats.CompletedCount))
	sb.WriteString(fmt.Sprintf("**Failed:** %d\n", stats.FailedCount))
	sb.WriteString(fmt.Sprintf("**Cancelled:** %d\n", stats.CancelledCount))
	if stats.AverageDuration > 0 {
		sb.WriteString(fmt.Sprintf("**Average duration:** %s\n", stats.AverageDuration))
	}
	if len(stats.QueuedByPriority) > 0 {
		sb.WriteString("\n### Queued by priority\n\n")
		for priority, count := range stats.QueuedByPriority {
			sb.WriteString(fmt.Sprintf("- Priority %d: %d\n", priority, count))
		}
	}
	return sb.String()
}

// formatJobLogs formats job log entries as markdown
func formatJobLogs(jobID string, entries []*models.JobLogEntry) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Logs for %s (%d lines)\n\n", jobID, len(entries)))

	if len(entries) == 0 {
		sb.WriteString("No log entries.\n")
		return sb.String()
	}

	for _, entry := range entries {
		sb.WriteString(fmt.Sprintf("`%s` **%s**", entry.Timestamp.Format("15:04:05"), strings.ToUpper(entry.Level)))
		if entry.Stage != "" {
			sb.WriteString(fmt.Sprintf(" [%s]", entry.Stage))
		}
		sb.WriteString(fmt.Sprintf(" %s\n", entry.Message))
	}
	return sb.String()
}

// formatPipelines formats pipeline definitions as markdown
func formatPipelines(defs []*models.PipelineDefinition) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Pipelines (%d)\n\n", len(defs)))

	if len(defs) == 0 {
		sb.WriteString("No pipeline definitions stored.\n")
		return sb.String()
	}

	for _, def := range defs {
		sb.WriteString(fmt.Sprintf("### %s\n", def.ID))
		if def.Name != "" {
			sb.WriteString(fmt.Sprintf("**Name:** %s\n", def.Name))
		}
		sb.WriteString(fmt.Sprintf("**Enabled:** %v\n", def.Enabled))
		if def.Schedule != "" {
			sb.WriteString(fmt.Sprintf("**Schedule:** `%s`\n", def.Schedule))
		}
		sb.WriteString(fmt.Sprintf("**Tasks:** %d\n", len(def.Tasks)))
		for _, task := range def.Tasks {
			sb.WriteString(fmt.Sprintf("- `%s` (%s)", task.ID, task.Agent))
			if len(task.DependsOn) > 0 {
				sb.WriteString(fmt.Sprintf(" after %s", strings.Join(task.DependsOn, ", ")))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatDocument formats a stored document as markdown
func formatDocument(doc *models.Document) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", doc.Name))
	sb.WriteString(fmt.Sprintf("**ID:** %s\n", doc.ID))
	sb.WriteString(fmt.Sprintf("**Source:** %s\n", doc.Source))
	sb.WriteString(fmt.Sprintf("**Content type:** %s\n", doc.ContentType))
	sb.WriteString(fmt.Sprintf("**Size:** %d bytes\n", doc.SizeBytes))
	if doc.Pages > 0 {
		sb.WriteString(fmt.Sprintf("**Pages:** %d\n", doc.Pages))
	}
	sb.WriteString(fmt.Sprintf("**Created:** %s\n", doc.CreatedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("**Updated:** %s\n", doc.UpdatedAt.Format(time.RFC3339)))
	if len(doc.ReportPDF) > 0 {
		sb.WriteString(fmt.Sprintf("**Report:** %d byte PDF attached\n", len(doc.ReportPDF)))
	}

	sb.WriteString("\n## Content\n\n")
	content := doc.Content
	if len(content) > 4000 {
		content = content[:4000] + "\n\n*(truncated)*"
	}
	sb.WriteString(content)
	sb.WriteString("\n")

	if len(doc.Metadata) > 0 {
		metadataJSON, _ := json.MarshalIndent(doc.Metadata, "", "  ")
		sb.WriteString(fmt.Sprintf("\n## Metadata\n\n```json\n%s\n```\n", string(metadataJSON)))
	}
	return sb.String()
}
