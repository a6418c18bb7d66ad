//go:build integration

package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetyard/eldcore/pkg/api/auth"
	"github.com/fleetyard/eldcore/pkg/api/middleware"
	"github.com/fleetyard/eldcore/pkg/dlq"
	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/fleetyard/eldcore/pkg/eld/validation"
	"github.com/fleetyard/eldcore/pkg/fleet"
	"github.com/fleetyard/eldcore/pkg/idempotency"
	"github.com/fleetyard/eldcore/pkg/ingest"
	"github.com/fleetyard/eldcore/pkg/retry"
	"github.com/fleetyard/eldcore/pkg/sequence"
	"github.com/fleetyard/eldcore/pkg/store"
	"github.com/fleetyard/eldcore/pkg/syncproto"
	"github.com/fleetyard/eldcore/pkg/unidentified"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// todayBase returns one minute past midnight of the current UTC day,
// keeping test events inside one log date regardless of wall clock.
func todayBase() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour).Add(time.Minute)
}

// envelope mirrors the wire shape with raw payloads so each test can
// decode data into its own type.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Error   *eld.Error      `json:"error"`
}

// apiHarness runs the full router over an in-memory store behind a
// real HTTP listener.
type apiHarness struct {
	store *store.Store
	jwt   *auth.JWTService
	ts    *httptest.Server

	carrier *fleet.Carrier
	driver  *fleet.Driver
	vehicle *fleet.Vehicle
	device  *fleet.Device
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	ctx := context.Background()

	st, err := store.New(&store.Config{
		Type: store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{
			Path: ":memory:",
		},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := &apiHarness{store: st}

	h.carrier = &fleet.Carrier{Name: "Fleetyard Test Lines", USDOTNumber: "1234567", Active: true}
	if err := st.CreateCarrier(ctx, h.carrier); err != nil {
		t.Fatalf("failed to create carrier: %v", err)
	}
	h.driver = &fleet.Driver{CarrierID: h.carrier.ID, Username: "jdoe", HomeTerminalTZ: "UTC", Active: true}
	if err := st.CreateDriver(ctx, h.driver); err != nil {
		t.Fatalf("failed to create driver: %v", err)
	}
	h.vehicle = &fleet.Vehicle{CarrierID: h.carrier.ID, PowerUnitNumber: "TR-100", Active: true}
	if err := st.CreateVehicle(ctx, h.vehicle); err != nil {
		t.Fatalf("failed to create vehicle: %v", err)
	}
	h.device = &fleet.Device{CarrierID: h.carrier.ID, SerialNumber: "ELD-0100", Active: true}
	if err := st.CreateDevice(ctx, h.device); err != nil {
		t.Fatalf("failed to create device: %v", err)
	}

	directory := fleet.NewDirectory(st)
	validator := validation.New(directory)
	allocator := sequence.New(st)
	policy := retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	pipeline := ingest.New(st, validator, allocator, directory, policy)

	h.jwt, err = auth.NewJWTService(auth.JWTConfig{Secret: testSecret})
	if err != nil {
		t.Fatalf("failed to create jwt service: %v", err)
	}

	router := NewRouter(APIConfig{}, Deps{
		Store:        st,
		Pipeline:     pipeline,
		Allocator:    allocator,
		Sync:         syncproto.New(st, pipeline),
		DLQ:          dlq.New(st, pipeline, 100),
		Unidentified: unidentified.New(st, pipeline),
		Idempotency:  idempotency.NewMemoryStore(idempotency.Options{}),
		JWT:          h.jwt,
	})
	h.ts = httptest.NewServer(router)
	t.Cleanup(h.ts.Close)

	return h
}

// token mints an access token for the harness driver account with the
// given role.
func (h *apiHarness) token(t *testing.T, role string) string {
	t.Helper()
	pair, err := h.jwt.GenerateTokenPair(auth.Identity{
		AccountID: h.driver.ID,
		CarrierID: h.carrier.ID,
		DeviceID:  h.device.ID,
		Role:      role,
	})
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	return pair.AccessToken
}

// do sends a request and returns the status, decoded envelope, and
// raw body bytes.
func (h *apiHarness) do(t *testing.T, method, path, token string, body any, headers map[string]string) (*http.Response, envelope, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, h.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("response is not an envelope: %v\n%s", err, raw)
		}
	}
	return resp, env, raw
}

func (h *apiHarness) dutyInput(minute, miles int) *eld.EventInput {
	return &eld.EventInput{
		EventType:          eld.EventTypeDutyStatus,
		EventCode:          3,
		EventTimestamp:     todayBase().Add(time.Duration(minute) * time.Minute),
		DriverID:           h.driver.ID,
		VehicleID:          h.vehicle.ID,
		DeviceID:           h.device.ID,
		RecordOrigin:       eld.OriginDriver,
		AccumulatedMiles:   miles,
		ElapsedEngineHours: miles / 10,
	}
}

func (h *apiHarness) logDate() string {
	return eld.LogDateFor(todayBase(), time.UTC)
}

func decodeData(t *testing.T, env envelope, v any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("failed to decode envelope data: %v\n%s", err, env.Data)
	}
}

func TestHealthProbes_Unauthenticated(t *testing.T) {
	h := newAPIHarness(t)

	for _, path := range []string{"/health", "/health/ready"} {
		resp, err := h.ts.Client().Get(h.ts.URL + path)
		if err != nil {
			t.Fatalf("health request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected %s to return 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestSubmit_RequiresAuth(t *testing.T) {
	h := newAPIHarness(t)

	resp, env, _ := h.do(t, http.MethodPost, "/events", "", h.dutyInput(0, 100), nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if env.Success {
		t.Error("expected failure envelope")
	}
	if env.Error == nil || env.Error.Code != eld.CodeUnauthorized {
		t.Errorf("expected UNAUTHORIZED, got %+v", env.Error)
	}

	resp, _, _ = h.do(t, http.MethodPost, "/events", "not-a-token", h.dutyInput(0, 100), nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for garbage token, got %d", resp.StatusCode)
	}
}

func TestSubmit_FirstEventAndDuplicate(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, auth.RoleDriver)

	resp, env, _ := h.do(t, http.MethodPost, "/events", token, h.dutyInput(0, 100), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, env.Error)
	}
	var result ingest.Result
	decodeData(t, env, &result)
	if result.SequenceID != 1 {
		t.Errorf("expected sequence id 1, got %d", result.SequenceID)
	}
	if len(result.ChainHash) != 64 {
		t.Errorf("expected sha-256 chain hash, got %q", result.ChainHash)
	}

	// Same slot, different payload: rejected as a duplicate.
	dup := h.dutyInput(2, 150)
	seq := 1
	dup.SequenceID = &seq
	resp, env, _ = h.do(t, http.MethodPost, "/events", token, dup, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != eld.CodeDuplicate {
		t.Errorf("expected DUPLICATE, got %+v", env.Error)
	}
}

func TestSubmit_ValidationFailure(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, auth.RoleDriver)

	input := h.dutyInput(0, 100)
	input.VehicleID = ""
	resp, env, _ := h.do(t, http.MethodPost, "/events", token, input, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != eld.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %+v", env.Error)
	}
	if len(env.Error.Details) == 0 {
		t.Error("expected field-level details")
	}
}

func TestSubmit_GzipBody(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, auth.RoleDriver)

	payload, err := json.Marshal(h.dutyInput(0, 100))
	if err != nil {
		t.Fatalf("failed to marshal input: %v", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		t.Fatalf("failed to compress input: %v", err)
	}
	zw.Close()

	resp, env, _ := h.do(t, http.MethodPost, "/events", token, buf.Bytes(), map[string]string{
		"Content-Encoding": "gzip",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for gzip body, got %d: %s", resp.StatusCode, env.Error)
	}

	resp, env, _ = h.do(t, http.MethodPost, "/events", token, []byte("not gzip"), map[string]string{
		"Content-Encoding": "gzip",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for junk gzip, got %d", resp.StatusCode)
	}
}

func TestSubmit_IdempotencyReplay(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, auth.RoleDriver)
	headers := map[string]string{middleware.HeaderIdempotencyKey: "submit-42"}

	input := h.dutyInput(0, 100)
	resp, _, first := h.do(t, http.MethodPost, "/events", token, input, headers)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if resp.Header.Get(middleware.HeaderIdempotencyReplayed) != "" {
		t.Error("first response must not be marked replayed")
	}

	resp, _, second := h.do(t, http.MethodPost, "/events", token, input, headers)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 on replay, got %d", resp.StatusCode)
	}
	if resp.Header.Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Error("expected Idempotency-Replayed: true")
	}
	if !bytes.Equal(first, second) {
		t.Errorf("replayed body differs:\n%s\n%s", first, second)
	}
}

func TestBatch_PartialAndAllRejected(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, auth.RoleDriver)

	bad := h.dutyInput(12, 220)
	bad.VehicleID = ""
	body := map[string]any{"events": []*eld.EventInput{h.dutyInput(10, 200), h.dutyInput(11, 210), bad}}

	resp, env, _ := h.do(t, http.MethodPost, "/events/batch", token, body, nil)
	if resp.StatusCode != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d", resp.StatusCode)
	}
	var result ingest.BatchResult
	decodeData(t, env, &result)
	if result.Summary.Accepted != 2 || result.Summary.Rejected != 1 {
		t.Errorf("expected 2 accepted / 1 rejected, got %+v", result.Summary)
	}

	allBad := h.dutyInput(13, 230)
	allBad.VehicleID = ""
	resp, env, _ = h.do(t, http.MethodPost, "/events/batch", token, map[string]any{"events": []*eld.EventInput{allBad}}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 when every event is rejected, got %d", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != eld.CodeValidation {
		t.Errorf("expected batch-level VALIDATION_ERROR, got %+v", env.Error)
	}
	if len(env.Data) == 0 {
		t.Error("expected per-event outcomes alongside the batch error")
	}
}

func TestReserveAndSyncStatus(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, auth.RoleDriver)

	body := map[string]any{"device_id": h.device.ID, "log_date": h.logDate(), "count": 10}
	resp, env, _ := h.do(t, http.MethodPost, "/events/sequence-ids/reserve", token, body, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, env.Error)
	}
	var reservation struct {
		ReservationID string    `json:"reservation_id"`
		StartID       int       `json:"start_id"`
		EndID         int       `json:"end_id"`
		ExpiresAt     time.Time `json:"expires_at"`
	}
	decodeData(t, env, &reservation)
	if reservation.StartID != 1 || reservation.EndID != 10 {
		t.Errorf("expected block 1-10, got %d-%d", reservation.StartID, reservation.EndID)
	}
	if reservation.ReservationID == "" || reservation.ExpiresAt.IsZero() {
		t.Errorf("incomplete reservation: %+v", reservation)
	}

	path := fmt.Sprintf("/sync/status?device_id=%s&log_date=%s", h.device.ID, h.logDate())
	resp, env, _ = h.do(t, http.MethodGet, path, token, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var state struct {
		LastIssuedID int `json:"last_issued_id"`
	}
	decodeData(t, env, &state)
	if state.LastIssuedID != 10 {
		t.Errorf("expected last issued id 10 after reservation, got %d", state.LastIssuedID)
	}
}

func TestSyncDrain(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, auth.RoleDriver)

	body := map[string]any{
		"device_id": h.device.ID,
		"events":    []*eld.EventInput{h.dutyInput(0, 100), h.dutyInput(5, 120)},
	}
	resp, env, _ := h.do(t, http.MethodPost, "/sync/events", token, body, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, env.Error)
	}
	var result syncproto.Response
	decodeData(t, env, &result)
	if len(result.Accepted) != 2 || len(result.Rejected) != 0 {
		t.Errorf("expected 2 accepted / 0 rejected, got %d/%d", len(result.Accepted), len(result.Rejected))
	}
	if result.NewSyncedUpToAt.IsZero() {
		t.Error("expected a new sync watermark")
	}
}

func TestQueryEvents(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, auth.RoleDriver)

	for i, miles := range []int{100, 120} {
		resp, env, _ := h.do(t, http.MethodPost, "/events", token, h.dutyInput(i*10, miles), nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed submit failed: %d %s", resp.StatusCode, env.Error)
		}
	}

	path := fmt.Sprintf("/events?start_date=%s&end_date=%s&driver_id=%s", h.logDate(), h.logDate(), h.driver.ID)
	resp, env, _ := h.do(t, http.MethodGet, path, token, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, env.Error)
	}
	var events []*eld.Event
	decodeData(t, env, &events)
	if len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}

	// Missing range and bad event type are validation rejections.
	resp, _, _ = h.do(t, http.MethodGet, "/events", token, nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without a date range, got %d", resp.StatusCode)
	}
	path = fmt.Sprintf("/events?start_date=%s&end_date=%s&event_type=9", h.logDate(), h.logDate())
	resp, _, _ = h.do(t, http.MethodGet, path, token, nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown event type, got %d", resp.StatusCode)
	}
}

func TestScopeGapsAndVerify(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, auth.RoleDriver)

	resp, env, _ := h.do(t, http.MethodPost, "/events", token, h.dutyInput(0, 100), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("seed submit failed: %d %s", resp.StatusCode, env.Error)
	}
	gapped := h.dutyInput(10, 150)
	seq := 5
	gapped.SequenceID = &seq
	resp, env, _ = h.do(t, http.MethodPost, "/events", token, gapped, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("gapped submit failed: %d %s", resp.StatusCode, env.Error)
	}

	scope := "/events/" + h.device.ID + "/" + h.logDate()

	resp, env, _ = h.do(t, http.MethodGet, scope, token, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var events []*eld.Event
	decodeData(t, env, &events)
	if len(events) != 2 {
		t.Errorf("expected 2 events in scope, got %d", len(events))
	}

	resp, env, _ = h.do(t, http.MethodGet, scope+"/gaps", token, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var gaps struct {
		ExpectedCount int `json:"expected_count"`
		Gaps          []struct {
			From int `json:"from"`
			To   int `json:"to"`
		} `json:"gaps"`
	}
	decodeData(t, env, &gaps)
	if gaps.ExpectedCount != 5 {
		t.Errorf("expected count 5, got %d", gaps.ExpectedCount)
	}
	if len(gaps.Gaps) != 1 || gaps.Gaps[0].From != 2 || gaps.Gaps[0].To != 4 {
		t.Errorf("expected one gap 2-4, got %+v", gaps.Gaps)
	}

	resp, env, _ = h.do(t, http.MethodGet, scope+"/verify", token, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var verify struct {
		Valid   bool `json:"valid"`
		Checked int  `json:"checked"`
	}
	decodeData(t, env, &verify)
	if !verify.Valid || verify.Checked != 2 {
		t.Errorf("expected valid chain over 2 events, got %+v", verify)
	}
}

func TestRoleGuards(t *testing.T) {
	h := newAPIHarness(t)

	driver := h.token(t, auth.RoleDriver)
	operator := h.token(t, auth.RoleOperator)
	admin := h.token(t, auth.RoleAdmin)

	resp, env, _ := h.do(t, http.MethodGet, "/admin/dlq", driver, nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for driver on admin surface, got %d", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != eld.CodeForbidden {
		t.Errorf("expected FORBIDDEN, got %+v", env.Error)
	}

	resp, _, _ = h.do(t, http.MethodGet, "/admin/dlq", admin, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for admin, got %d", resp.StatusCode)
	}
	resp, _, _ = h.do(t, http.MethodGet, "/admin/dlq/stats", admin, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for admin stats, got %d", resp.StatusCode)
	}

	resp, _, _ = h.do(t, http.MethodGet, "/unidentified-driving", driver, nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for driver on review surface, got %d", resp.StatusCode)
	}
	resp, _, _ = h.do(t, http.MethodGet, "/unidentified-driving", operator, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for operator, got %d", resp.StatusCode)
	}
}

func TestUnidentifiedReviewFlow(t *testing.T) {
	h := newAPIHarness(t)
	operator := h.token(t, auth.RoleOperator)

	// An unidentified driving event opens a review record.
	input := h.dutyInput(0, 100)
	input.DriverID = ""
	input.RecordOrigin = eld.OriginUnidentified
	resp, env, _ := h.do(t, http.MethodPost, "/events", operator, input, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unidentified submit failed: %d %s", resp.StatusCode, env.Error)
	}

	resp, env, _ = h.do(t, http.MethodGet, "/unidentified-driving?status=pending", operator, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var reviews []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeData(t, env, &reviews)
	if len(reviews) != 1 {
		t.Fatalf("expected one pending review, got %d", len(reviews))
	}

	claim := map[string]any{"driver_id": h.driver.ID, "notes": "driver confirmed the trip"}
	resp, env, _ = h.do(t, http.MethodPost, "/unidentified-driving/"+reviews[0].ID+"/claim", operator, claim, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim failed: %d %s", resp.StatusCode, env.Error)
	}
	var claimed struct {
		Record *eld.UnidentifiedDrivingRecord `json:"record"`
		Event  *ingest.Result                 `json:"event"`
	}
	decodeData(t, env, &claimed)
	if claimed.Record == nil || claimed.Record.Status != eld.UnidentifiedClaimed {
		t.Errorf("expected claimed record, got %+v", claimed.Record)
	}
	if claimed.Event == nil || claimed.Event.EventID == "" {
		t.Errorf("expected an attributed event, got %+v", claimed.Event)
	}

	// A second claim must 404-or-conflict as the record is no longer pending.
	resp, env, _ = h.do(t, http.MethodPost, "/unidentified-driving/"+reviews[0].ID+"/claim", operator, claim, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for a re-claim, got %d", resp.StatusCode)
	}
}
