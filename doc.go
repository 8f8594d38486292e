// Package snowcap provides an incremental, checkpointed batch importer that
// moves rows from a Snowflake table into an event-capture endpoint.
//
// Snowcap runs as a self-rescheduling job: every batch reads one window of
// rows at the current offset, transforms each row into a capture event with
// the configured strategy, emits the events, advances a crash-safe
// checkpoint, and schedules its own successor. Transient source failures are
// retried with exponential backoff at the batch level; structural
// misconfiguration fails the import fast.
//
// # Quick Start
//
// Generate a starter configuration, fill in the connection details, and run:
//
//	snowcap init --output import.yaml
//	snowcap run --config import.yaml
//
// # Key Packages
//
//	pkg/snowflake    - Serialized Snowflake query execution
//	pkg/transform    - Row-to-event transformation strategies
//	pkg/checkpoint   - Durable offset tracking and resumption
//	pkg/sink         - Event-capture delivery
//	pkg/config       - Import configuration loading and validation
//	pkg/errors       - Structured error handling
//	pkg/logger       - Structured logging
//	pkg/metrics      - Prometheus metrics
//	internal/runner  - The batch scheduler and retry state machine
//	internal/importer - Pipeline assembly and lifecycle
//
// # Import Modes
//
// A continuous import polls the source table on a fixed cadence forever,
// following table growth. A historical import snapshots the table's row count
// at first startup and terminates once the offset passes that watermark.
//
// # Transformation Strategies
//
// Five strategies are registered out of the box: default, JSON Map,
// Predefined Fields, passthrough, and Cleaned-Up Properties. Strategies that
// need external configuration declare required attachments (a column
// mapping, a field configuration, a property rename dictionary) which are
// verified before the import starts.
package snowcap
