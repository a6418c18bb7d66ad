package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for ingestion operations.
// These follow OpenTelemetry semantic conventions where applicable.
// Domain keys use an "eld." prefix; transport keys use their own.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// Actor attributes
	// ========================================================================
	AttrCarrierID = "eld.carrier_id"
	AttrDriverID  = "eld.driver_id"
	AttrDeviceID  = "eld.device_id"
	AttrAccountID = "eld.account_id"
	AttrRole      = "eld.role"

	// ========================================================================
	// Event attributes
	// ========================================================================
	AttrEventID     = "eld.event_id"
	AttrEventType   = "eld.event_type"
	AttrEventCode   = "eld.event_code"
	AttrSequenceID  = "eld.sequence_id"
	AttrChainHash   = "eld.chain_hash"
	AttrLogDate     = "eld.log_date"
	AttrLogPeriodID = "eld.log_period_id"
	AttrOrigin      = "eld.origin"
	AttrOutcome     = "eld.outcome"
	AttrErrorCode   = "eld.error_code"

	// ========================================================================
	// Batch and sync attributes
	// ========================================================================
	AttrBatchSize  = "eld.batch.size"
	AttrBatchIndex = "eld.batch.index"
	AttrAccepted   = "eld.batch.accepted"
	AttrRejected   = "eld.batch.rejected"
	AttrSyncCursor = "eld.sync.cursor"
	AttrServerFeed = "eld.sync.server_events"

	// ========================================================================
	// Dead letter queue attributes
	// ========================================================================
	AttrDLQEntryID = "eld.dlq.entry_id"
	AttrDLQStatus  = "eld.dlq.status"
	AttrOperatorID = "eld.operator_id"

	// ========================================================================
	// Storage attributes
	// ========================================================================
	AttrStoreOp      = "db.operation"
	AttrStoreBackend = "db.system"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// Ingestion pipeline spans
	SpanSubmit   = "ingest.submit"
	SpanBatch    = "ingest.batch"
	SpanValidate = "ingest.validate"
	SpanSequence = "ingest.sequence"
	SpanPersist  = "ingest.persist"

	// Sync protocol spans
	SpanSyncDrain = "sync.drain"

	// Review and triage spans
	SpanDLQRetry   = "dlq.retry"
	SpanDLQRedrive = "dlq.redrive"
	SpanClaim      = "unidentified.claim"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// CarrierID returns an attribute for the carrier (motor carrier DOT account)
func CarrierID(id string) attribute.KeyValue {
	return attribute.String(AttrCarrierID, id)
}

// DriverID returns an attribute for the driver
func DriverID(id string) attribute.KeyValue {
	return attribute.String(AttrDriverID, id)
}

// DeviceID returns an attribute for the submitting ELD device
func DeviceID(id string) attribute.KeyValue {
	return attribute.String(AttrDeviceID, id)
}

// AccountID returns an attribute for the authenticated account
func AccountID(id string) attribute.KeyValue {
	return attribute.String(AttrAccountID, id)
}

// Role returns an attribute for the authenticated role
func Role(role string) attribute.KeyValue {
	return attribute.String(AttrRole, role)
}

// EventID returns an attribute for a stored event ID
func EventID(id string) attribute.KeyValue {
	return attribute.String(AttrEventID, id)
}

// EventType returns an attribute for the FMCSA event type (1-7)
func EventType(t int) attribute.KeyValue {
	return attribute.Int(AttrEventType, t)
}

// EventCode returns an attribute for the event code within its type
func EventCode(c int) attribute.KeyValue {
	return attribute.Int(AttrEventCode, c)
}

// SequenceID returns an attribute for the per-device sequence number
func SequenceID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrSequenceID, id)
}

// LogDate returns an attribute for the MMDDYY log date
func LogDate(d string) attribute.KeyValue {
	return attribute.String(AttrLogDate, d)
}

// LogPeriodID returns an attribute for the 24-hour log period
func LogPeriodID(id string) attribute.KeyValue {
	return attribute.String(AttrLogPeriodID, id)
}

// Origin returns an attribute for the event record origin
func Origin(o string) attribute.KeyValue {
	return attribute.String(AttrOrigin, o)
}

// Outcome returns an attribute for the admission outcome
// (accepted, replayed, rejected)
func Outcome(o string) attribute.KeyValue {
	return attribute.String(AttrOutcome, o)
}

// ErrorCode returns an attribute for the wire error code
func ErrorCode(code string) attribute.KeyValue {
	return attribute.String(AttrErrorCode, code)
}

// BatchSize returns an attribute for submitted batch size
func BatchSize(n int) attribute.KeyValue {
	return attribute.Int(AttrBatchSize, n)
}

// BatchIndex returns an attribute for a position within a batch
func BatchIndex(i int) attribute.KeyValue {
	return attribute.Int(AttrBatchIndex, i)
}

// Accepted returns an attribute for the accepted count of a batch
func Accepted(n int) attribute.KeyValue {
	return attribute.Int(AttrAccepted, n)
}

// Rejected returns an attribute for the rejected count of a batch
func Rejected(n int) attribute.KeyValue {
	return attribute.Int(AttrRejected, n)
}

// SyncCursor returns an attribute for the client's synced-up-to cursor
func SyncCursor(cursor string) attribute.KeyValue {
	return attribute.String(AttrSyncCursor, cursor)
}

// ServerFeed returns an attribute for the size of the server-edit feed
func ServerFeed(n int) attribute.KeyValue {
	return attribute.Int(AttrServerFeed, n)
}

// DLQEntryID returns an attribute for a dead letter entry
func DLQEntryID(id string) attribute.KeyValue {
	return attribute.String(AttrDLQEntryID, id)
}

// DLQStatus returns an attribute for a dead letter entry status
func DLQStatus(status string) attribute.KeyValue {
	return attribute.String(AttrDLQStatus, status)
}

// OperatorID returns an attribute for the acting operator
func OperatorID(id string) attribute.KeyValue {
	return attribute.String(AttrOperatorID, id)
}

// StoreOp returns an attribute for a database operation name
func StoreOp(op string) attribute.KeyValue {
	return attribute.String(AttrStoreOp, op)
}

// StoreBackend returns an attribute for the database backend (sqlite, postgres)
func StoreBackend(backend string) attribute.KeyValue {
	return attribute.String(AttrStoreBackend, backend)
}

// StartSubmitSpan starts a span for a single event admission.
// This is a convenience function that sets common attributes.
func StartSubmitSpan(ctx context.Context, deviceID string, eventType int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		DeviceID(deviceID),
		EventType(eventType),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanSubmit, trace.WithAttributes(allAttrs...))
}

// StartBatchSpan starts a span for a batch admission.
func StartBatchSpan(ctx context.Context, deviceID string, size int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		DeviceID(deviceID),
		BatchSize(size),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanBatch, trace.WithAttributes(allAttrs...))
}

// StartSyncSpan starts a span for a device drain.
func StartSyncSpan(ctx context.Context, deviceID string, size int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		DeviceID(deviceID),
		BatchSize(size),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanSyncDrain, trace.WithAttributes(allAttrs...))
}

// StartDLQSpan starts a span for a dead letter operation.
func StartDLQSpan(ctx context.Context, name, entryID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		DLQEntryID(entryID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}
