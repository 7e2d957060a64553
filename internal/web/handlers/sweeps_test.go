package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSweepsHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		status     int
		wantMarked int
	}{
		{"closed day", map[string]string{"date": "2025-03-13"}, http.StatusOK, 2},
		{"today still open", map[string]string{"date": "2025-03-14"}, http.StatusConflict, 0},
		{"future", map[string]string{"date": "2025-03-20"}, http.StatusConflict, 0},
		{"bad date", map[string]string{"date": "yesterday"}, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.seed()
			handler := NewSweepsHandler(env.service, testLogger())
			handler.now = env.at(12, 0)

			recorder := httptest.NewRecorder()
			handler.Create(recorder, jsonRequest(t, http.MethodPost, "/api/v1/sweeps", tt.body))
			assertStatusCode(t, recorder, tt.status)

			if tt.status == http.StatusOK {
				var resp SweepResponse
				parseJSONResponse(t, recorder, &resp)
				if resp.MarkedAbsent != tt.wantMarked || resp.Date != "2025-03-13" {
					t.Errorf("unexpected response %+v", resp)
				}
			}
			if got := len(env.ledger.Events()); got != tt.wantMarked {
				t.Errorf("ledger has %d events, want %d", got, tt.wantMarked)
			}
		})
	}
}
