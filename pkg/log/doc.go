/*
Package log provides structured logging for certmint built on zerolog.

The package wraps zerolog behind a small initialization surface so every
component logs through the same globally configured writer, level, and
format. Logs are structured JSON in production and human-readable console
output during development.

# Architecture

	┌─────────────── LOGGING PIPELINE ────────────────┐
	│                                                  │
	│  Component code                                  │
	│    log.WithComponent("pipeline")                 │
	│    log.WithJob(internalID, externalID)           │
	│    log.WithItem(itemID)                          │
	│         │                                        │
	│         ▼                                        │
	│  zerolog.Logger (child with bound fields)        │
	│         │                                        │
	│         ▼                                        │
	│  Global level gate (debug/info/warning/error)    │
	│         │                                        │
	│         ├── JSONOutput: raw JSON lines           │
	│         └── console: zerolog.ConsoleWriter       │
	│                                                  │
	└──────────────────────────────────────────────────┘

# Usage

Initialize once at startup, before any component starts:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Component loggers carry a stable component field:

	logger := log.WithComponent("orchestrator")
	logger.Info().
		Str("job_id", job.InternalID).
		Int("total_items", job.TotalItems).
		Msg("batch accepted")

Request-scoped loggers bind the batch identity pair so every line of a
batch's processing can be correlated end to end:

	jlog := log.WithJob(job.InternalID, job.ExternalID)
	jlog.Info().Msg("dispatch started")

# Field Conventions

  - component: emitting package (orchestrator, pipeline, bus, jobstore, ...)
  - job_id / pdf_job_id: internal and external batch identity
  - item_id, serial_code: item identity
  - stage: pipeline stage for item-scoped failures
  - subject: bus subject for event plane logs

# Levels

The configured level accepts debug, info, warning (or warn), and error;
unknown values fall back to info. The level is global: child loggers
inherit it through zerolog's global level gate.
*/
package log
