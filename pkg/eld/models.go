// Package eld holds the domain model of the event ingestion core: the
// immutable Event record and its FMCSA enumerations, the per-day
// LogPeriod envelope, the sequence-ID counter state, dead-letter
// entries, unidentified driving records, and the stable wire error
// vocabulary shared by every subsystem.
package eld

// AllModels returns all GORM models owned by this package, for
// auto-migration.
func AllModels() []any {
	return []any{
		&Event{},
		&LogPeriod{},
		&SequenceIDState{},
		&DLQEntry{},
		&UnidentifiedDrivingRecord{},
	}
}
