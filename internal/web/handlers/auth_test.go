package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

func TestAuthHandler_Login_Success(t *testing.T) {
	sm := middleware.NewSessionManager("test-secret", nil)
	handler := NewAuthHandler("4321", sm, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(`{"pin": "4321"}`))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()

	handler.Login(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")

	var response LoginResponse
	parseJSONResponse(t, recorder, &response)
	if !response.Success || response.SessionID == "" || response.ExpiresAt == "" {
		t.Errorf("unexpected response %+v", response)
	}

	var found bool
	for _, c := range recorder.Result().Cookies() {
		if c.Name == "attendance_admin_session" && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("expected session cookie to be set")
	}
}

func TestAuthHandler_Login_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		pin    string
		body   string
		status int
	}{
		{"wrong pin", "4321", `{"pin": "0000"}`, http.StatusUnauthorized},
		{"missing pin", "4321", `{"pin": ""}`, http.StatusBadRequest},
		{"invalid json", "4321", `{pin`, http.StatusBadRequest},
		{"login disabled", "", `{"pin": "4321"}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := middleware.NewSessionManager("test-secret", nil)
			handler := NewAuthHandler(tt.pin, sm, testLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(tt.body))
			recorder := httptest.NewRecorder()
			handler.Login(recorder, req)

			assertStatusCode(t, recorder, tt.status)
			if len(recorder.Result().Cookies()) != 0 {
				t.Error("rejected login must not set a cookie")
			}
		})
	}
}

func TestAuthHandler_StatusAndLogout(t *testing.T) {
	sm := middleware.NewSessionManager("test-secret", nil)
	handler := NewAuthHandler("4321", sm, testLogger())

	session, err := sm.CreateSession(t.Context())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/status", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)
	recorder := httptest.NewRecorder()
	handler.Status(recorder, req)

	var status StatusResponse
	parseJSONResponse(t, recorder, &status)
	if !status.Authenticated || !status.LoginEnabled {
		t.Errorf("unexpected status %+v", status)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)
	recorder = httptest.NewRecorder()
	handler.Logout(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	if sm.GetSession(t.Context(), session.ID) != nil {
		t.Error("session must be deleted after logout")
	}
}

func TestAuthHandler_Status_Anonymous(t *testing.T) {
	sm := middleware.NewSessionManager("test-secret", nil)
	handler := NewAuthHandler("", sm, testLogger())

	recorder := httptest.NewRecorder()
	handler.Status(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/auth/status", nil))

	var status StatusResponse
	parseJSONResponse(t, recorder, &status)
	if status.Authenticated || status.LoginEnabled {
		t.Errorf("unexpected status %+v", status)
	}
}
