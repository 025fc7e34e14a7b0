// -----------------------------------------------------------------------
// Log Consumer - drains arbor's context channel into job logs and the
// status stream
// -----------------------------------------------------------------------

package logs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	arborlevels "github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/status"
)

// excludedMessages drops transport noise and the consumer's own output so
// forwarded logs never echo back through the channel.
var excludedMessages = []string{
	"HTTP request",
	"HTTP response",
	"WebSocket client",
	"SSE stream",
	"SSE client",
	"Event dropped",
	"Failed to append forwarded job log",
}

// Consumer receives batched log events from arbor's context channel,
// persists entries carrying a job correlation ID, and forwards entries at
// or above the configured level to every open stream connection as
// system_message events.
type Consumer struct {
	jobLogs     interfaces.JobLogStorage
	broadcaster *status.Broadcaster
	logger      arbor.ILogger
	channel     chan []arbormodels.LogEvent
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	minLevel    arbor.LogLevel
}

// NewConsumer creates a log consumer. minStreamLevel sets the lowest level
// forwarded to stream clients; job log persistence is level-independent.
func NewConsumer(jobLogs interfaces.JobLogStorage, broadcaster *status.Broadcaster, logger arbor.ILogger, minStreamLevel string) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		jobLogs:     jobLogs,
		broadcaster: broadcaster,
		logger:      logger,
		channel:     make(chan []arbormodels.LogEvent, 10),
		ctx:         ctx,
		cancel:      cancel,
		minLevel:    parseLogLevel(minStreamLevel),
	}
}

// GetChannel returns the channel the arbor logger writes batches to
func (c *Consumer) GetChannel() chan []arbormodels.LogEvent {
	return c.channel
}

// Start launches the consumer goroutine
func (c *Consumer) Start() error {
	c.wg.Add(1)
	go c.consume()
	return nil
}

// Stop cancels the consumer and waits for the loop to exit
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

func (c *Consumer) consume() {
	defer c.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Log consumer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-c.channel:
			if !ok {
				return
			}
			for _, event := range batch {
				c.process(event)
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// process handles one log event: persist when job-correlated, forward
// when at or above the stream threshold
func (c *Consumer) process(event arbormodels.LogEvent) {
	for _, pattern := range excludedMessages {
		if strings.Contains(event.Message, pattern) {
			return
		}
	}

	entry := transformEvent(event)

	if entry.JobID != "" {
		if err := c.jobLogs.AppendLog(c.ctx, &entry); err != nil {
			// Logged without a correlation ID so the failure is not
			// itself appended as a job log
			c.logger.Warn().
				Err(err).
				Str("job_id", entry.JobID).
				Msg("Failed to append forwarded job log")
		}
	}

	if arborlevels.FromLogLevel(event.Level) >= c.minLevel {
		data := map[string]interface{}{
			"level":   entry.Level,
			"message": entry.Message,
			"time":    event.Timestamp.Format("15:04:05"),
		}
		if entry.JobID != "" {
			data["job_id"] = entry.JobID
		}
		if entry.Stage != "" {
			data["stage"] = entry.Stage
		}
		c.broadcaster.BroadcastSystem(models.NewStreamEvent(models.StreamEventSystemMessage, data))
	}
}

// transformEvent converts an arbor log event into a job log entry. The
// "stage" field is lifted out of the structured fields; remaining fields
// are appended to the message as key=value pairs.
func transformEvent(event arbormodels.LogEvent) models.JobLogEntry {
	var stage string
	message := event.Message
	if len(event.Fields) > 0 {
		var extra []string
		for key, value := range event.Fields {
			if key == "stage" {
				stage = fmt.Sprintf("%v", value)
				continue
			}
			extra = append(extra, fmt.Sprintf("%s=%v", key, value))
		}
		for _, field := range extra {
			message += " " + field
		}
	}

	return models.JobLogEntry{
		JobID:     event.CorrelationID,
		Level:     levelString(event.Level),
		Stage:     stage,
		Message:   message,
		Timestamp: event.Timestamp,
	}
}

// parseLogLevel converts a config string to an arbor level, defaulting to info
func parseLogLevel(levelStr string) arbor.LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return arbor.DebugLevel
	case "info":
		return arbor.InfoLevel
	case "warn", "warning":
		return arbor.WarnLevel
	case "error":
		return arbor.ErrorLevel
	default:
		return arbor.InfoLevel
	}
}

// levelString maps phuslu levels to the wire strings job logs use
func levelString(level log.Level) string {
	switch level {
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		return "error"
	case log.WarnLevel:
		return "warn"
	case log.DebugLevel, log.TraceLevel:
		return "debug"
	default:
		return "info"
	}
}
