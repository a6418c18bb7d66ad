package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so the ingestion,
// sync, and DLQ paths can be correlated in log aggregation.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// HTTP Request
	// ========================================================================
	KeyRequestID = "request_id" // Middleware-assigned request ID
	KeyClientIP  = "client_ip"  // Client IP address
	KeyMethod    = "method"     // HTTP method
	KeyPath      = "path"       // Request path
	KeyStatus    = "status"     // HTTP status code
	KeyEndpoint  = "endpoint"   // Logical endpoint name (events, events_batch, sync)

	// ========================================================================
	// Actor
	// ========================================================================
	KeyUserID    = "user_id"    // Authenticated user ID
	KeyCarrierID = "carrier_id" // Motor carrier the actor belongs to
	KeyRole      = "role"       // Actor role (driver, admin, support)

	// ========================================================================
	// ELD Domain
	// ========================================================================
	KeyEventID      = "event_id"      // Event UUID
	KeyEventType    = "event_type"    // FMCSA event type code (1..7)
	KeySequenceID   = "sequence_id"   // Sequence ID within (device, log date)
	KeyDeviceID     = "device_id"     // ELD device ID
	KeyDriverID     = "driver_id"     // Driver ID
	KeyVehicleID    = "vehicle_id"    // Vehicle ID
	KeyLogDate      = "log_date"      // MMDDYY log date in home-terminal timezone
	KeyLogPeriodID  = "log_period_id" // LogPeriod UUID
	KeyRecordOrigin = "record_origin" // auto, driver, carrier_edit, unidentified
	KeyRecordStatus = "record_status" // active, inactive variants
	KeyChainHash    = "chain_hash"    // Hex chain hash
	KeyContentHash  = "content_hash"  // Hex content hash

	// ========================================================================
	// Sequence Allocation
	// ========================================================================
	KeyLastIssuedID  = "last_issued_id" // Counter state at decision time
	KeyProposedID    = "proposed_id"    // Client-proposed sequence ID
	KeyGapFrom       = "gap_from"       // First skipped ID in a gap
	KeyGapTo         = "gap_to"         // Last skipped ID in a gap
	KeyReservationID = "reservation_id" // Reserved block ID

	// ========================================================================
	// Batch / Sync
	// ========================================================================
	KeyBatchIndex = "batch_index" // Position of the event within the batch
	KeyBatchSize  = "batch_size"  // Total events in the batch
	KeyAccepted   = "accepted"    // Accepted event count
	KeyRejected   = "rejected"    // Rejected event count
	KeySyncedUpTo = "synced_up_to" // Client knowledge horizon

	// ========================================================================
	// Validation
	// ========================================================================
	KeyLayer = "layer" // Validation layer (1 shape, 2 rules, 3 existence)
	KeyField = "field" // Offending field name

	// ========================================================================
	// Retry / DLQ
	// ========================================================================
	KeyAttempt        = "attempt"        // Retry attempt number
	KeyMaxAttempts    = "max_attempts"   // Configured attempt ceiling
	KeyDelayMs        = "delay_ms"       // Backoff delay before this attempt
	KeyClassification = "classification" // transient or permanent
	KeyDLQID          = "dlq_id"         // DLQ entry ID
	KeyDLQStatus      = "dlq_status"     // pending, retrying, resolved, discarded
	KeyRetryCount     = "retry_count"    // DLQ entry retry count
	KeyPendingCount   = "pending_count"  // DLQ pending depth

	// ========================================================================
	// Stores
	// ========================================================================
	KeyStoreType = "store_type" // badger, redis, memory
	KeyDatabase  = "database"   // sqlite, postgres
	KeyRows      = "rows"       // Affected/returned row count
	KeyPartition = "partition"  // Event table partition name

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Stable wire error code
	KeyComponent  = "component"   // Subsystem name (ingest, sync, dlq, allocator)
	KeyCount      = "count"       // Generic count
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// RequestID returns a slog.Attr for the middleware-assigned request ID
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// Status returns a slog.Attr for HTTP status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// Endpoint returns a slog.Attr for the logical endpoint name
func Endpoint(name string) slog.Attr {
	return slog.String(KeyEndpoint, name)
}

// UserID returns a slog.Attr for the authenticated user
func UserID(id string) slog.Attr {
	return slog.String(KeyUserID, id)
}

// CarrierID returns a slog.Attr for the motor carrier
func CarrierID(id string) slog.Attr {
	return slog.String(KeyCarrierID, id)
}

// EventID returns a slog.Attr for the event UUID
func EventID(id string) slog.Attr {
	return slog.String(KeyEventID, id)
}

// EventType returns a slog.Attr for the FMCSA event type code
func EventType(t int) slog.Attr {
	return slog.Int(KeyEventType, t)
}

// SequenceID returns a slog.Attr for a sequence ID
func SequenceID(id int) slog.Attr {
	return slog.Int(KeySequenceID, id)
}

// DeviceID returns a slog.Attr for the ELD device
func DeviceID(id string) slog.Attr {
	return slog.String(KeyDeviceID, id)
}

// DriverID returns a slog.Attr for the driver
func DriverID(id string) slog.Attr {
	return slog.String(KeyDriverID, id)
}

// VehicleID returns a slog.Attr for the vehicle
func VehicleID(id string) slog.Attr {
	return slog.String(KeyVehicleID, id)
}

// LogDate returns a slog.Attr for the MMDDYY log date
func LogDate(d string) slog.Attr {
	return slog.String(KeyLogDate, d)
}

// LogPeriodID returns a slog.Attr for the log period
func LogPeriodID(id string) slog.Attr {
	return slog.String(KeyLogPeriodID, id)
}

// ChainHash returns a slog.Attr for a hex chain hash
func ChainHash(h string) slog.Attr {
	return slog.String(KeyChainHash, h)
}

// LastIssuedID returns a slog.Attr for the allocator counter state
func LastIssuedID(id int) slog.Attr {
	return slog.Int(KeyLastIssuedID, id)
}

// ProposedID returns a slog.Attr for a client-proposed sequence ID
func ProposedID(id int) slog.Attr {
	return slog.Int(KeyProposedID, id)
}

// BatchIndex returns a slog.Attr for the event position within a batch
func BatchIndex(i int) slog.Attr {
	return slog.Int(KeyBatchIndex, i)
}

// BatchSize returns a slog.Attr for the batch size
func BatchSize(n int) slog.Attr {
	return slog.Int(KeyBatchSize, n)
}

// Layer returns a slog.Attr for the validation layer
func Layer(l int) slog.Attr {
	return slog.Int(KeyLayer, l)
}

// Field returns a slog.Attr for the offending field name
func Field(name string) slog.Attr {
	return slog.String(KeyField, name)
}

// Attempt returns a slog.Attr for the retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxAttempts returns a slog.Attr for the configured attempt ceiling
func MaxAttempts(n int) slog.Attr {
	return slog.Int(KeyMaxAttempts, n)
}

// DelayMs returns a slog.Attr for the backoff delay in milliseconds
func DelayMs(ms int64) slog.Attr {
	return slog.Int64(KeyDelayMs, ms)
}

// Classification returns a slog.Attr for the failure classification
func Classification(c string) slog.Attr {
	return slog.String(KeyClassification, c)
}

// DLQID returns a slog.Attr for a DLQ entry ID
func DLQID(id string) slog.Attr {
	return slog.String(KeyDLQID, id)
}

// DLQStatus returns a slog.Attr for a DLQ entry status
func DLQStatus(s string) slog.Attr {
	return slog.String(KeyDLQStatus, s)
}

// StoreType returns a slog.Attr for the auxiliary store backend
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}

// Database returns a slog.Attr for the relational backend
func Database(d string) slog.Attr {
	return slog.String(KeyDatabase, d)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a stable wire error code
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Component returns a slog.Attr for the subsystem name
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Count returns a slog.Attr for a generic count
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}
