package sequence

// GapReport summarizes the holes in a scope's committed sequence IDs.
// Expected is the counter's high-water mark; Missing lists every ID in
// [1, Expected] with no active event row. Gaps are derived on demand
// from the counter and the rows, never stored, so a late-arriving event
// closes its gap with no bookkeeping.
type GapReport struct {
	Expected int   `json:"expected"`
	Missing  []int `json:"missing"`
}

// HasGaps reports whether any issued ID is unaccounted for.
func (r GapReport) HasGaps() bool {
	return len(r.Missing) > 0
}

// GapRange is a run of consecutive missing IDs, both ends inclusive.
type GapRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Ranges collapses Missing into inclusive runs. Missing is already
// sorted ascending because DetectGaps walks IDs in order.
func (r GapReport) Ranges() []GapRange {
	ranges := []GapRange{}
	for _, id := range r.Missing {
		if n := len(ranges); n > 0 && ranges[n-1].To == id-1 {
			ranges[n-1].To = id
			continue
		}
		ranges = append(ranges, GapRange{From: id, To: id})
	}
	return ranges
}

// DetectGaps compares the issued high-water mark against the committed
// IDs. Committed IDs above lastIssuedID are ignored; they mean the
// counter row is behind the events, which the next allocation repairs.
func DetectGaps(lastIssuedID int, committed []int) GapReport {
	present := make(map[int]struct{}, len(committed))
	for _, id := range committed {
		present[id] = struct{}{}
	}

	missing := []int{}
	for id := 1; id <= lastIssuedID; id++ {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}

	return GapReport{Expected: lastIssuedID, Missing: missing}
}
