package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/scrutor/internal/app"
	"github.com/ternarybob/scrutor/internal/common"
)

func main() {
	configPath := os.Getenv("SCRUTOR_CONFIG")
	if configPath == "" {
		configPath = "scrutor.toml"
	}

	config, err := common.LoadFromFile(nil, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Minimal console logger at warn level to avoid cluttering MCP stdio
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	// The full application stack runs in-process so submitted jobs execute
	// here; the MCP server owns its own data directory
	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	mcpServer := server.NewMCPServer(
		"scrutor",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Job tools
	mcpServer.AddTool(createSubmitJobTool(), handleSubmitJob(application.QueueManager, logger))
	mcpServer.AddTool(createJobStatusTool(), handleJobStatus(application.QueueManager, logger))
	mcpServer.AddTool(createCancelJobTool(), handleCancelJob(application.QueueManager, logger))
	mcpServer.AddTool(createListJobsTool(), handleListJobs(application.QueueManager, logger))
	mcpServer.AddTool(createQueueStatsTool(), handleQueueStats(application.QueueManager, logger))
	mcpServer.AddTool(createJobLogsTool(), handleJobLogs(application.StorageManager.JobLogStorage(), logger))

	// Pipeline and document tools
	mcpServer.AddTool(createListPipelinesTool(), handleListPipelines(application.StorageManager.PipelineStorage(), logger))
	mcpServer.AddTool(createGetDocumentTool(), handleGetDocument(application.StorageManager.DocumentStorage(), logger))

	// Blocks on stdio
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
