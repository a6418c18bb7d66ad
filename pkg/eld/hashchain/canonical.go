package hashchain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetyard/eldcore/pkg/eld"
)

// canonicalPayload builds the hashed field set of an event. Keys follow
// the FMCSA export vocabulary; null fields are omitted so the same event
// hashes identically regardless of how absent values were transported.
//
// The timestamp is normalized to UTC seconds so equivalent instants
// submitted with different offsets produce the same content hash.
func canonicalPayload(e *eld.Event) map[string]any {
	payload := map[string]any{
		"eventType":          int(e.EventType),
		"eventSubType":       e.EventCode,
		"eventTimestamp":     e.EventTimestamp.UTC().Format(time.RFC3339),
		"sequenceId":         e.SequenceID,
		"vehicleId":          e.VehicleID,
		"deviceId":           e.DeviceID,
		"accumulatedMiles":   e.AccumulatedMiles,
		"elapsedEngineHours": e.ElapsedEngineHours,
		"recordStatus":       int(e.RecordStatus),
		"recordOrigin":       int(e.RecordOrigin),
	}

	if e.DriverID != "" {
		payload["driverId"] = e.DriverID
	}
	if e.Latitude != nil {
		payload["latitude"] = *e.Latitude
	}
	if e.Longitude != nil {
		payload["longitude"] = *e.Longitude
	}
	if e.LocationDescription != "" {
		payload["locationDescription"] = e.LocationDescription
	}

	return payload
}

// marshalCanonical serializes the payload with lexicographically sorted
// keys. encoding/json sorts map keys, which gives us the canonical form
// directly.
func marshalCanonical(payload map[string]any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal canonical payload: %w", err)
	}
	return data, nil
}
