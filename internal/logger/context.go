package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	RequestID string    // Middleware-assigned request ID
	ClientIP  string    // Client IP address (without port)
	CarrierID string    // Carrier of the authenticated actor
	UserID    string    // Authenticated user ID
	DeviceID  string    // ELD device the request concerns
	DriverID  string    // Driver the request concerns
	LogDate   string    // MMDDYY log date the request concerns
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// WithActor returns a copy with the authenticated actor set
func (lc *LogContext) WithActor(userID, carrierID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.UserID = userID
		clone.CarrierID = carrierID
	}
	return clone
}

// WithScope returns a copy with the (device, log date) scope set
func (lc *LogContext) WithScope(deviceID, logDate string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.DeviceID = deviceID
		clone.LogDate = logDate
	}
	return clone
}

// WithDriver returns a copy with the driver set
func (lc *LogContext) WithDriver(driverID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.DriverID = driverID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
