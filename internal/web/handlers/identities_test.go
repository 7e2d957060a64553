package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/extraction"
)

func TestIdentitiesHandler_List(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed()
	env.store.AddIdentity(database.Identity{DisplayName: "Aarav", Category: database.CategoryStudent, Group: "4B"})
	handler := NewIdentitiesHandler(env.service, testLogger())

	tests := []struct {
		name      string
		query     string
		status    int
		wantNames []string
	}{
		{"all", "", http.StatusOK, []string{"Aarav", "Asha", "Bilal"}},
		{"students", "?category=student", http.StatusOK, []string{"Aarav", "Asha"}},
		{"one group", "?category=student&group=5A", http.StatusOK, []string{"Asha"}},
		{"staff alias", "?category=secondary", http.StatusOK, []string{"Bilal"}},
		{"bad category", "?category=visitor", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/identities"+tt.query, nil))
			assertStatusCode(t, recorder, tt.status)
			if tt.status != http.StatusOK {
				return
			}

			var resp IdentitiesResponse
			parseJSONResponse(t, recorder, &resp)
			if resp.Count != len(tt.wantNames) {
				t.Fatalf("count = %d, want %d", resp.Count, len(tt.wantNames))
			}
			for i, name := range tt.wantNames {
				if resp.Identities[i].Name != name {
					t.Errorf("position %d = %s, want %s", i, resp.Identities[i].Name, name)
				}
			}
			if len(resp.Groups) != 2 {
				t.Errorf("groups = %v", resp.Groups)
			}
		})
	}
}

func TestIdentitiesHandler_Create(t *testing.T) {
	tests := []struct {
		name      string
		extractor *fakeExtractor
		fields    map[string]string
		image     []byte
		status    int
	}{
		{
			name:      "created",
			extractor: oneFace(database.Embedding{0, 0, 1, 0}),
			fields:    map[string]string{"name": "Chen Wei", "category": "student", "group": "5A"},
			image:     []byte("jpeg"),
			status:    http.StatusCreated,
		},
		{
			name:      "duplicate name",
			extractor: oneFace(database.Embedding{0, 0, 1, 0}),
			fields:    map[string]string{"name": "asha", "category": "student"},
			image:     []byte("jpeg"),
			status:    http.StatusConflict,
		},
		{
			name:      "missing image",
			extractor: oneFace(database.Embedding{0, 0, 1, 0}),
			fields:    map[string]string{"name": "Chen Wei"},
			status:    http.StatusBadRequest,
		},
		{
			name:      "missing name",
			extractor: oneFace(database.Embedding{0, 0, 1, 0}),
			fields:    map[string]string{"category": "staff"},
			image:     []byte("jpeg"),
			status:    http.StatusBadRequest,
		},
		{
			name:      "no face",
			extractor: &fakeExtractor{result: extraction.Result{Outcome: extraction.OutcomeNoFace}},
			fields:    map[string]string{"name": "Chen Wei"},
			image:     []byte("jpeg"),
			status:    http.StatusUnprocessableEntity,
		},
		{
			name:      "undecodable image",
			extractor: &fakeExtractor{err: extraction.ErrInvalidImage},
			fields:    map[string]string{"name": "Chen Wei"},
			image:     []byte("jpeg"),
			status:    http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.extractor)
			env.seed()
			handler := NewIdentitiesHandler(env.service, testLogger())

			recorder := httptest.NewRecorder()
			handler.Create(recorder, multipartRequest(t, "/api/v1/identities", tt.fields, tt.image))
			assertStatusCode(t, recorder, tt.status)

			if tt.status == http.StatusCreated {
				var resp identityResponse
				parseJSONResponse(t, recorder, &resp)
				if resp.ID == 0 || resp.Name != "Chen Wei" || resp.Group != "5A" {
					t.Errorf("unexpected identity %+v", resp)
				}
			}
		})
	}
}
