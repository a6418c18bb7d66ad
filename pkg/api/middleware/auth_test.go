package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fleetyard/eldcore/pkg/api/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newJWT(t *testing.T) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(auth.JWTConfig{Secret: testSecret})
	if err != nil {
		t.Fatalf("failed to create jwt service: %v", err)
	}
	return svc
}

func accessToken(t *testing.T, svc *auth.JWTService, role string) string {
	t.Helper()
	pair, err := svc.GenerateTokenPair(auth.Identity{
		AccountID: "acct-1",
		CarrierID: "carrier-1",
		DeviceID:  "device-1",
		Role:      role,
	})
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	return pair.AccessToken
}

// claimsProbe records the claims the middleware stack delivered.
func claimsProbe(got **auth.Claims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = GetClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Success {
		t.Error("expected success=false on an error response")
	}
	return body.Error.Code
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	var got *auth.Claims
	handler := JWTAuth(newJWT(t))(claimsProbe(&got))

	req := httptest.NewRequest("GET", "/events", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "UNAUTHORIZED" {
		t.Errorf("expected UNAUTHORIZED, got %q", code)
	}
	if got != nil {
		t.Error("handler must not run without a token")
	}
}

func TestJWTAuth_InvalidToken(t *testing.T) {
	handler := JWTAuth(newJWT(t))(claimsProbe(new(*auth.Claims)))

	for _, header := range []string{"Bearer garbage", "Basic abc", "Bearer "} {
		req := httptest.NewRequest("GET", "/events", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("header %q: expected 401, got %d", header, w.Code)
		}
	}
}

func TestJWTAuth_RejectsRefreshToken(t *testing.T) {
	svc := newJWT(t)
	pair, err := svc.GenerateTokenPair(auth.Identity{AccountID: "acct-1", Role: auth.RoleDriver})
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}

	handler := JWTAuth(svc)(claimsProbe(new(*auth.Claims)))
	req := httptest.NewRequest("GET", "/events", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a refresh token on an API route, got %d", w.Code)
	}
}

func TestJWTAuth_ValidToken(t *testing.T) {
	svc := newJWT(t)
	var got *auth.Claims
	handler := JWTAuth(svc)(claimsProbe(&got))

	req := httptest.NewRequest("GET", "/events", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken(t, svc, auth.RoleDriver))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got == nil {
		t.Fatal("expected claims in the request context")
	}
	if got.AccountID != "acct-1" || got.CarrierID != "carrier-1" || got.DeviceID != "device-1" {
		t.Errorf("claims did not round-trip: %+v", got)
	}
}

func TestRequireAdmin(t *testing.T) {
	svc := newJWT(t)

	tests := []struct {
		name string
		role string
		want int
	}{
		{"driver forbidden", auth.RoleDriver, http.StatusForbidden},
		{"operator forbidden", auth.RoleOperator, http.StatusForbidden},
		{"admin allowed", auth.RoleAdmin, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := JWTAuth(svc)(RequireAdmin()(claimsProbe(new(*auth.Claims))))
			req := httptest.NewRequest("GET", "/admin/dlq", nil)
			req.Header.Set("Authorization", "Bearer "+accessToken(t, svc, tt.role))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
			if tt.want == http.StatusForbidden {
				if code := errorCode(t, w); code != "FORBIDDEN" {
					t.Errorf("expected FORBIDDEN, got %q", code)
				}
			}
		})
	}
}

func TestRequireAdmin_NoClaims(t *testing.T) {
	handler := RequireAdmin()(claimsProbe(new(*auth.Claims)))
	req := httptest.NewRequest("GET", "/admin/dlq", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without claims, got %d", w.Code)
	}
}

func TestRequireOperator(t *testing.T) {
	svc := newJWT(t)

	tests := []struct {
		role string
		want int
	}{
		{auth.RoleDriver, http.StatusForbidden},
		{auth.RoleOperator, http.StatusOK},
		{auth.RoleAdmin, http.StatusOK},
	}

	for _, tt := range tests {
		handler := JWTAuth(svc)(RequireOperator()(claimsProbe(new(*auth.Claims))))
		req := httptest.NewRequest("GET", "/unidentified-driving", nil)
		req.Header.Set("Authorization", "Bearer "+accessToken(t, svc, tt.role))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != tt.want {
			t.Errorf("role %s: expected %d, got %d", tt.role, tt.want, w.Code)
		}
	}
}
