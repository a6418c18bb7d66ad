package sequence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fleetyard/eldcore/pkg/eld"
)

var testScope = eld.Scope{DeviceID: "DEV1", LogDate: "021526"}

// fakeStateStore keeps counter state in memory with the same versioned
// compare-and-set contract the relational store implements.
type fakeStateStore struct {
	mu        sync.Mutex
	states    map[string]*eld.SequenceIDState
	failSaves int
	loadErr   error
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: make(map[string]*eld.SequenceIDState)}
}

func (f *fakeStateStore) LoadState(_ context.Context, scope eld.Scope) (*eld.SequenceIDState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if s, ok := f.states[scope.Key()]; ok {
		clone := *s
		clone.Reservations = append([]eld.Reservation(nil), s.Reservations...)
		return &clone, nil
	}
	return &eld.SequenceIDState{DeviceID: scope.DeviceID, LogDate: scope.LogDate}, nil
}

func (f *fakeStateStore) SaveState(_ context.Context, state *eld.SequenceIDState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaves > 0 {
		f.failSaves--
		return eld.ErrStaleSequenceState
	}
	if existing, ok := f.states[state.Scope().Key()]; ok && existing.Version != state.Version {
		return eld.ErrStaleSequenceState
	}
	state.Version++
	clone := *state
	clone.Reservations = append([]eld.Reservation(nil), state.Reservations...)
	f.states[state.Scope().Key()] = &clone
	return nil
}

func wantCode(t *testing.T, err error, code eld.Code) *eld.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	var de *eld.Error
	if !errors.As(err, &de) {
		t.Fatalf("expected *eld.Error, got %T: %v", err, err)
	}
	if de.Code != code {
		t.Fatalf("code = %s, want %s", de.Code, code)
	}
	return de
}

func intPtr(v int) *int { return &v }

func TestIssueAutoAssign(t *testing.T) {
	state := &eld.SequenceIDState{DeviceID: "DEV1", LogDate: "021526"}
	now := time.Now()

	for want := 1; want <= 3; want++ {
		id, warning, err := Issue(state, nil, now)
		if err != nil {
			t.Fatalf("issue %d: %v", want, err)
		}
		if warning != nil {
			t.Fatalf("issue %d: unexpected warning %+v", want, warning)
		}
		if id != want {
			t.Fatalf("issue = %d, want %d", id, want)
		}
	}
	if state.LastIssuedID != 3 {
		t.Errorf("last issued = %d, want 3", state.LastIssuedID)
	}
}

func TestIssueProposedAdvancesCounter(t *testing.T) {
	state := &eld.SequenceIDState{DeviceID: "DEV1", LogDate: "021526", LastIssuedID: 41}
	id, warning, err := Issue(state, intPtr(42), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if warning != nil {
		t.Fatalf("consecutive proposal should not warn, got %+v", warning)
	}
	if id != 42 || state.LastIssuedID != 42 {
		t.Errorf("id = %d, last issued = %d, want 42/42", id, state.LastIssuedID)
	}
}

func TestIssueNonMonotonic(t *testing.T) {
	state := &eld.SequenceIDState{DeviceID: "DEV1", LogDate: "021526", LastIssuedID: 47}

	_, _, err := Issue(state, intPtr(44), time.Now())
	de := wantCode(t, err, eld.CodeNonMonotonic)

	if got := de.Meta["last_issued_id"]; got != 47 {
		t.Errorf("meta last_issued_id = %v, want 47", got)
	}
	if got := de.Meta["proposed_id"]; got != 44 {
		t.Errorf("meta proposed_id = %v, want 44", got)
	}
	if state.LastIssuedID != 47 {
		t.Errorf("rejected proposal must not move the counter, got %d", state.LastIssuedID)
	}

	// Equal is just as non-monotonic as less-than.
	_, _, err = Issue(state, intPtr(47), time.Now())
	wantCode(t, err, eld.CodeNonMonotonic)
}

func TestIssueGapEscalation(t *testing.T) {
	tests := []struct {
		name     string
		proposed int
		wantCode eld.Code
		wantNil  bool
	}{
		{"consecutive", 43, "", true},
		{"skip one", 44, eld.CodeGapDetected, false},
		{"skip to threshold", 52, eld.CodeGapDetected, false},
		{"past threshold", 53, eld.CodeLargeGap, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &eld.SequenceIDState{DeviceID: "DEV1", LogDate: "021526", LastIssuedID: 42}
			id, warning, err := Issue(state, intPtr(tt.proposed), time.Now())
			if err != nil {
				t.Fatal(err)
			}
			if id != tt.proposed {
				t.Errorf("id = %d, want %d", id, tt.proposed)
			}
			if tt.wantNil {
				if warning != nil {
					t.Fatalf("unexpected warning %+v", warning)
				}
				return
			}
			if warning == nil {
				t.Fatal("expected a warning")
			}
			if warning.Code != tt.wantCode {
				t.Errorf("warning code = %s, want %s", warning.Code, tt.wantCode)
			}
		})
	}
}

func TestIssueDomainBounds(t *testing.T) {
	state := &eld.SequenceIDState{DeviceID: "DEV1", LogDate: "021526"}

	for _, proposed := range []int{0, -1, 65536} {
		_, _, err := Issue(state, intPtr(proposed), time.Now())
		wantCode(t, err, eld.CodeValidation)
	}
}

func TestIssueConsumesReservation(t *testing.T) {
	now := time.Now()
	state := &eld.SequenceIDState{
		DeviceID:     "DEV1",
		LogDate:      "021526",
		LastIssuedID: 12,
		Reservations: []eld.Reservation{
			{ID: "r1", StartID: 10, EndID: 12, NextID: 10, ExpiresAt: now.Add(time.Hour)},
		},
	}

	for want := 10; want <= 12; want++ {
		id, _, err := Issue(state, nil, now)
		if err != nil {
			t.Fatal(err)
		}
		if id != want {
			t.Fatalf("id = %d, want %d", id, want)
		}
	}

	// Block drained: allocation falls back to the counter, which Reserve
	// already moved past the block.
	id, _, err := Issue(state, nil, now)
	if err != nil {
		t.Fatal(err)
	}
	if id != 13 {
		t.Errorf("post-block id = %d, want 13", id)
	}
}

func TestIssueSkipsExpiredReservation(t *testing.T) {
	now := time.Now()
	state := &eld.SequenceIDState{
		DeviceID:     "DEV1",
		LogDate:      "021526",
		LastIssuedID: 20,
		Reservations: []eld.Reservation{
			{ID: "stale", StartID: 10, EndID: 20, NextID: 15, ExpiresAt: now.Add(-time.Minute)},
		},
	}

	id, _, err := Issue(state, nil, now)
	if err != nil {
		t.Fatal(err)
	}
	if id != 21 {
		t.Errorf("id = %d, want 21 (expired block must not be consumed)", id)
	}
	if len(state.Reservations) != 0 {
		t.Errorf("expired block should be pruned, %d left", len(state.Reservations))
	}
}

func TestIssueExhausted(t *testing.T) {
	state := &eld.SequenceIDState{DeviceID: "DEV1", LogDate: "021526", LastIssuedID: eld.MaxSequenceID - 1}

	id, _, err := Issue(state, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if id != eld.MaxSequenceID {
		t.Fatalf("id = %d, want %d", id, eld.MaxSequenceID)
	}

	_, _, err = Issue(state, nil, time.Now())
	wantCode(t, err, eld.CodeSequenceExhausted)
}

func TestReserveBlocks(t *testing.T) {
	store := newFakeStateStore()
	a := New(store)
	fixed := time.Date(2026, 2, 15, 14, 30, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }
	ctx := context.Background()

	first, err := a.Reserve(ctx, testScope, 100)
	if err != nil {
		t.Fatal(err)
	}
	if first.StartID != 1 || first.EndID != 100 {
		t.Errorf("block = [%d..%d], want [1..100]", first.StartID, first.EndID)
	}
	if !first.ExpiresAt.Equal(fixed.Add(ReservationTTL)) {
		t.Errorf("expires = %v, want %v", first.ExpiresAt, fixed.Add(ReservationTTL))
	}
	if first.ID == "" {
		t.Error("reservation needs an id")
	}

	second, err := a.Reserve(ctx, testScope, 50)
	if err != nil {
		t.Fatal(err)
	}
	if second.StartID != 101 || second.EndID != 150 {
		t.Errorf("second block = [%d..%d], want [101..150]", second.StartID, second.EndID)
	}

	state, err := a.State(ctx, testScope)
	if err != nil {
		t.Fatal(err)
	}
	if state.LastIssuedID != 150 {
		t.Errorf("last issued = %d, want 150", state.LastIssuedID)
	}
	if len(state.Reservations) != 2 {
		t.Errorf("reservations = %d, want 2", len(state.Reservations))
	}
}

func TestReserveExhausted(t *testing.T) {
	store := newFakeStateStore()
	store.states[testScope.Key()] = &eld.SequenceIDState{
		DeviceID: testScope.DeviceID, LogDate: testScope.LogDate, LastIssuedID: 65500,
	}
	a := New(store)

	_, err := a.Reserve(context.Background(), testScope, 100)
	wantCode(t, err, eld.CodeSequenceExhausted)

	// Exactly filling the remaining space still works.
	block, err := a.Reserve(context.Background(), testScope, 35)
	if err != nil {
		t.Fatal(err)
	}
	if block.EndID != eld.MaxSequenceID {
		t.Errorf("end = %d, want %d", block.EndID, eld.MaxSequenceID)
	}
}

func TestReserveCountValidation(t *testing.T) {
	a := New(newFakeStateStore())
	for _, count := range []int{0, -5} {
		_, err := a.Reserve(context.Background(), testScope, count)
		wantCode(t, err, eld.CodeValidation)
	}
}

func TestReserveRetriesStaleSave(t *testing.T) {
	store := newFakeStateStore()
	store.failSaves = 2
	a := New(store)

	block, err := a.Reserve(context.Background(), testScope, 10)
	if err != nil {
		t.Fatalf("reserve should survive %d stale saves: %v", 2, err)
	}
	if block.StartID != 1 || block.EndID != 10 {
		t.Errorf("block = [%d..%d], want [1..10]", block.StartID, block.EndID)
	}
}

func TestReserveGivesUpAfterRepeatedRaces(t *testing.T) {
	store := newFakeStateStore()
	store.failSaves = casRetryLimit
	a := New(store)

	_, err := a.Reserve(context.Background(), testScope, 10)
	de := wantCode(t, err, eld.CodeInternal)
	if !errors.Is(de, eld.ErrStaleSequenceState) {
		t.Error("exhausted CAS retries should wrap ErrStaleSequenceState")
	}
}

func TestReserveConcurrent(t *testing.T) {
	store := newFakeStateStore()
	a := New(store)
	ctx := context.Background()

	const workers = 10
	blocks := make([]*eld.Reservation, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			block, err := a.Reserve(ctx, testScope, 10)
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			blocks[i] = block
		}()
	}
	wg.Wait()

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].StartID < blocks[j].StartID })
	next := 1
	for _, b := range blocks {
		if b == nil {
			t.Fatal("missing block")
		}
		if b.StartID != next {
			t.Fatalf("blocks overlap or leave holes: start = %d, want %d", b.StartID, next)
		}
		next = b.EndID + 1
	}
	if next != 101 {
		t.Errorf("blocks should tile [1..100], covered up to %d", next-1)
	}
}

func TestLockScopeSerializes(t *testing.T) {
	a := New(newFakeStateStore())
	unlock := a.LockScope(testScope)

	acquired := make(chan struct{})
	go func() {
		u := a.LockScope(testScope)
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second caller acquired a held scope lock")
	case <-time.After(50 * time.Millisecond):
	}

	// A different scope must not be blocked by this one.
	other := eld.Scope{DeviceID: "DEV2", LogDate: "021526"}
	done := make(chan struct{})
	go func() {
		u := a.LockScope(other)
		u()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unrelated scope was blocked")
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second caller never acquired the scope lock")
	}
}
