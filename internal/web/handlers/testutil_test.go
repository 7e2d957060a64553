package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/extraction"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

// fakeExtractor returns a fixed extraction result
type fakeExtractor struct {
	result extraction.Result
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, image []byte) (extraction.Result, error) {
	return f.result, f.err
}

func oneFace(emb database.Embedding) *fakeExtractor {
	return &fakeExtractor{result: extraction.Result{Outcome: extraction.OutcomeSuccess, Embedding: emb, FacesCount: 1}}
}

// testEnv is a service over in-memory stores with a 09:00-17:00 Kolkata window.
type testEnv struct {
	store   *mock.MockIdentityStore
	ledger  *mock.MockLedger
	service *attendance.Service
	window  attendance.WindowSpec
}

func newTestEnv(t *testing.T, ext extraction.Extractor) *testEnv {
	t.Helper()
	window, err := attendance.NewWindowSpec("09:00", "17:00", "Asia/Kolkata")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	store := mock.NewMockIdentityStore()
	ledger := mock.NewMockLedger()
	svc := attendance.NewService(attendance.ServiceDeps{
		Identities: store,
		Ledger:     ledger,
		Window:     window,
		Extractor:  ext,
		Dim:        4,
	})
	return &testEnv{store: store, ledger: ledger, service: svc, window: window}
}

// at returns a fixed clock on 2025-03-14 in the window's zone.
func (e *testEnv) at(hour, minute int) func() time.Time {
	return func() time.Time {
		return time.Date(2025, time.March, 14, hour, minute, 0, 0, e.window.Location)
	}
}

func (e *testEnv) seed() (database.Identity, database.Identity) {
	a := e.store.AddIdentity(database.Identity{
		DisplayName: "Asha", Category: database.CategoryStudent, Group: "5A",
		Embedding: database.Embedding{1, 0, 0, 0},
	})
	b := e.store.AddIdentity(database.Identity{
		DisplayName: "Bilal", Category: database.CategoryStaff,
		Embedding: database.Embedding{0, 1, 0, 0},
	})
	return a, b
}

// jsonRequest builds a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest builds a multipart request with form fields and an optional image file
func multipartRequest(t *testing.T, path string, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if image != nil {
		part, err := w.CreateFormFile("image", "face.jpg")
		if err != nil {
			t.Fatalf("create file: %v", err)
		}
		_, _ = part.Write(image)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
