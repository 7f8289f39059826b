package publish

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/silasm01/calendar-manager/internal/ics"
	"github.com/silasm01/calendar-manager/internal/model"
)

// placeholderStore records upserts and deletes like a tiny WebDAV calendar.
type placeholderStore struct {
	mu      sync.Mutex
	objects map[string][]byte // path -> last PUT body
	deletes []string
	failPut bool
	srv     *httptest.Server
}

func newPlaceholderStore(t *testing.T) *placeholderStore {
	t.Helper()
	s := &placeholderStore{objects: make(map[string][]byte)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			if s.failPut {
				http.Error(w, "rejected", http.StatusInternalServerError)
				return
			}
			body, _ := io.ReadAll(r.Body)
			s.objects[r.URL.Path] = body
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			s.deletes = append(s.deletes, r.URL.Path)
			if _, ok := s.objects[r.URL.Path]; !ok {
				http.NotFound(w, r)
				return
			}
			delete(s.objects, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method", http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *placeholderStore) object(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[path]
	return body, ok
}

func (s *placeholderStore) objectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func twoSourceSetup(t *testing.T) (*Publisher, *placeholderStore, *placeholderStore) {
	t.Helper()
	familyStore := newPlaceholderStore(t)
	ronjaStore := newPlaceholderStore(t)
	p := New([]model.Source{
		{Name: "family", FeedURL: "unused", BlockedURL: familyStore.srv.URL + "/blocked/family/"},
		{Name: "Ronja", FeedURL: "unused", BlockedURL: ronjaStore.srv.URL + "/blocked/ronja/"},
	})
	return p, familyStore, ronjaStore
}

func utc(t *testing.T, v string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		t.Fatalf("bad time %q: %v", v, err)
	}
	return ts
}

func TestApprovePublishesBufferedPlaceholderToSiblings(t *testing.T) {
	p, familyStore, ronjaStore := twoSourceSetup(t)

	err := p.Approve(context.Background(), ApproveRequest{
		UID:             "e1",
		Source:          "family",
		Start:           utc(t, "2025-06-01T10:00:00Z"),
		End:             utc(t, "2025-06-01T11:00:00Z"),
		Title:           "Dentist",
		BufferBeforeMin: 10,
		BufferAfterMin:  5,
	})
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	// The originating source's own store must stay untouched.
	if familyStore.objectCount() != 0 {
		t.Errorf("family's own store received a placeholder")
	}

	body, ok := ronjaStore.object("/blocked/ronja/e1.ics")
	if !ok {
		t.Fatal("sibling store did not receive the placeholder")
	}

	placeholders, err := ics.ParsePlaceholders(body)
	if err != nil {
		t.Fatalf("published document does not parse: %v", err)
	}
	ph, ok := placeholders["e1"]
	if !ok {
		t.Fatal("published document lost the UID join key")
	}
	if !ph.Start.Equal(utc(t, "2025-06-01T09:50:00Z")) {
		t.Errorf("buffered start = %v, want 09:50Z", ph.Start)
	}
	if !ph.End.Equal(utc(t, "2025-06-01T11:05:00Z")) {
		t.Errorf("buffered end = %v, want 11:05Z", ph.End)
	}
}

func TestApproveIsIdempotent(t *testing.T) {
	p, _, ronjaStore := twoSourceSetup(t)

	req := ApproveRequest{
		UID:    "e1",
		Source: "family",
		Start:  utc(t, "2025-06-01T10:00:00Z"),
		End:    utc(t, "2025-06-01T11:00:00Z"),
		Title:  "First title",
	}
	if err := p.Approve(context.Background(), req); err != nil {
		t.Fatalf("first Approve: %v", err)
	}

	req.Title = "Second title"
	req.BufferBeforeMin = 15
	if err := p.Approve(context.Background(), req); err != nil {
		t.Fatalf("second Approve: %v", err)
	}

	if got := ronjaStore.objectCount(); got != 1 {
		t.Fatalf("re-approval must overwrite, not duplicate: %d objects", got)
	}
	body, _ := ronjaStore.object("/blocked/ronja/e1.ics")
	placeholders, err := ics.ParsePlaceholders(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ph := placeholders["e1"]; !ph.Start.Equal(utc(t, "2025-06-01T09:45:00Z")) {
		t.Errorf("placeholder should reflect the second call's buffers, start = %v", ph.Start)
	}
}

func TestApproveTitleAndDescriptionResolution(t *testing.T) {
	cases := []struct {
		name       string
		req        ApproveRequest
		wantTitle  string
		wantNoDesc bool
		wantDesc   string
	}{
		{
			name:      "generic title",
			req:       ApproveRequest{Title: "Secret meeting", UseGenericTitle: true},
			wantTitle: "SUMMARY:Busy",
		},
		{
			name:      "empty title falls back",
			req:       ApproveRequest{Title: ""},
			wantTitle: "SUMMARY:Event",
		},
		{
			name:     "generic description",
			req:      ApproveRequest{Title: "T", Description: "secret", UseGenericDescription: true},
			wantDesc: "DESCRIPTION:Blocked time",
		},
		{
			name:       "empty description omitted",
			req:        ApproveRequest{Title: "T", Description: ""},
			wantNoDesc: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, _, ronjaStore := twoSourceSetup(t)
			req := tc.req
			req.UID = "e1"
			req.Source = "family"
			req.Start = utc(t, "2025-06-01T10:00:00Z")
			req.End = utc(t, "2025-06-01T11:00:00Z")

			if err := p.Approve(context.Background(), req); err != nil {
				t.Fatalf("Approve: %v", err)
			}
			body, ok := ronjaStore.object("/blocked/ronja/e1.ics")
			if !ok {
				t.Fatal("placeholder missing")
			}
			doc := string(body)
			if tc.wantTitle != "" && !strings.Contains(doc, tc.wantTitle) {
				t.Errorf("document missing %q:\n%s", tc.wantTitle, doc)
			}
			if tc.wantDesc != "" && !strings.Contains(doc, tc.wantDesc) {
				t.Errorf("document missing %q:\n%s", tc.wantDesc, doc)
			}
			if tc.wantNoDesc && strings.Contains(doc, "DESCRIPTION") {
				t.Errorf("empty description must be omitted:\n%s", doc)
			}
		})
	}
}

func TestApproveValidation(t *testing.T) {
	p, _, _ := twoSourceSetup(t)
	base := ApproveRequest{
		UID:    "e1",
		Source: "family",
		Start:  utc(t, "2025-06-01T10:00:00Z"),
		End:    utc(t, "2025-06-01T11:00:00Z"),
	}

	noUID := base
	noUID.UID = ""
	if err := p.Approve(context.Background(), noUID); !errors.Is(err, ErrMissingUID) {
		t.Errorf("missing uid: got %v, want ErrMissingUID", err)
	}

	noSource := base
	noSource.Source = ""
	if err := p.Approve(context.Background(), noSource); !errors.Is(err, ErrMissingSource) {
		t.Errorf("missing source: got %v, want ErrMissingSource", err)
	}

	noWindow := base
	noWindow.Start = time.Time{}
	if err := p.Approve(context.Background(), noWindow); !errors.Is(err, ErrMissingWindow) {
		t.Errorf("missing window: got %v, want ErrMissingWindow", err)
	}
}

func TestApproveSurvivesSiblingFailure(t *testing.T) {
	familyStore := newPlaceholderStore(t)
	ronjaStore := newPlaceholderStore(t)
	otherStore := newPlaceholderStore(t)
	ronjaStore.failPut = true

	p := New([]model.Source{
		{Name: "family", BlockedURL: familyStore.srv.URL + "/blocked/family/"},
		{Name: "Ronja", BlockedURL: ronjaStore.srv.URL + "/blocked/ronja/"},
		{Name: "other", BlockedURL: otherStore.srv.URL + "/blocked/other/"},
	})

	err := p.Approve(context.Background(), ApproveRequest{
		UID:    "e1",
		Source: "family",
		Start:  utc(t, "2025-06-01T10:00:00Z"),
		End:    utc(t, "2025-06-01T11:00:00Z"),
		Title:  "T",
	})
	if err != nil {
		t.Fatalf("Approve must stay best-effort across siblings: %v", err)
	}
	if _, ok := otherStore.object("/blocked/other/e1.ics"); !ok {
		t.Error("remaining sibling must still receive the placeholder")
	}
}

func TestRemoveApprovalSweepsAllStores(t *testing.T) {
	p, familyStore, ronjaStore := twoSourceSetup(t)

	if err := p.Approve(context.Background(), ApproveRequest{
		UID:    "e1",
		Source: "family",
		Start:  utc(t, "2025-06-01T10:00:00Z"),
		End:    utc(t, "2025-06-01T11:00:00Z"),
		Title:  "T",
	}); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if err := p.RemoveApproval(context.Background(), "e1"); err != nil {
		t.Fatalf("RemoveApproval: %v", err)
	}
	if ronjaStore.objectCount() != 0 {
		t.Error("placeholder not deleted from sibling store")
	}
	// Both stores are swept; family's store just 404s, which is fine.
	if len(familyStore.deletes) != 1 || len(ronjaStore.deletes) != 1 {
		t.Errorf("both stores should see the delete sweep: %v / %v", familyStore.deletes, ronjaStore.deletes)
	}
}

func TestRemoveApprovalIdempotent(t *testing.T) {
	p, _, _ := twoSourceSetup(t)

	// Nothing was ever published; every store answers 404.
	if err := p.RemoveApproval(context.Background(), "ghost"); err != nil {
		t.Fatalf("RemoveApproval on absent UID must succeed: %v", err)
	}

	if err := p.RemoveApproval(context.Background(), ""); !errors.Is(err, ErrMissingUID) {
		t.Errorf("empty uid: got %v, want ErrMissingUID", err)
	}
}

