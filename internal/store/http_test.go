package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"rmt-go/internal/rmt"
	"rmt-go/internal/store"
)

func testConfig(baseURL string) store.Config {
	return store.Config{
		BaseURL:        baseURL,
		APIToken:       "test-token",
		MaxRetries:     3,
		RateLimit:      1000,
		RateBurst:      10,
		RetryBaseDelay: time.Millisecond,
	}
}

func newTestStore(t *testing.T, handler http.HandlerFunc) (*store.HTTPStore, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	s, err := store.NewHTTPStore(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewHTTPStore: %v", err)
	}
	return s, server
}

func writeRecords(w http.ResponseWriter, records ...map[string]any) {
	json.NewEncoder(w).Encode(map[string]any{"records": records})
}

func TestHTTPStore_FetchPage(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	s, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		writeRecords(w,
			map[string]any{"id": "s1", "createdAt": "2025-01-01T00:00:00Z", "fields": map[string]string{"Email": "a@school.org"}},
			map[string]any{"id": "s2", "createdAt": "2025-01-02T00:00:00Z", "fields": map[string]string{"Email": "b@school.org"}},
		)
	})

	records, hasMore, err := s.FetchPage(context.Background(), "Students",
		map[string]string{"Establishment": "est-1", "YearGroup": "10"}, 0, 2)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if gotPath != "/collections/Students/records" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("auth header = %q", gotAuth)
	}
	want := "filter%5BEstablishment%5D=est-1&filter%5BYearGroup%5D=10&page=0&pageSize=2"
	if gotQuery != want {
		t.Errorf("query = %q, want %q", gotQuery, want)
	}

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if !hasMore {
		t.Error("a full page should report more records")
	}
	if records[0].ID != "s1" || records[0].Collection != "Students" {
		t.Errorf("record = %+v", records[0])
	}
	if records[0].Field("Email") != "a@school.org" {
		t.Errorf("email = %q", records[0].Field("Email"))
	}
	wantTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !records[0].CreatedAt.Equal(wantTime) {
		t.Errorf("createdAt = %v, want %v", records[0].CreatedAt, wantTime)
	}
}

func TestHTTPStore_FetchPage_ShortPageEndsPagination(t *testing.T) {
	s, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		writeRecords(w, map[string]any{"id": "s1", "createdAt": "2025-01-01T00:00:00Z", "fields": map[string]string{}})
	})

	_, hasMore, err := s.FetchPage(context.Background(), "Students", nil, 0, 10)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if hasMore {
		t.Error("a short page should end pagination")
	}
}

func TestHTTPStore_FetchPage_MalformedResponse(t *testing.T) {
	s, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})

	_, _, err := s.FetchPage(context.Background(), "Students", nil, 0, 10)
	if rmt.Failure(err) != rmt.FailureRejected {
		t.Errorf("malformed responses should classify as rejected, got %v (%v)", rmt.Failure(err), err)
	}
}

func TestHTTPStore_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	s, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeRecords(w)
	})

	_, _, err := s.FetchPage(context.Background(), "Students", nil, 0, 10)
	if err != nil {
		t.Fatalf("FetchPage should succeed after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("got %d calls, want 3", calls.Load())
	}
}

func TestHTTPStore_RetriesRateLimitResponses(t *testing.T) {
	var calls atomic.Int32
	s, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, _, err := s.FetchPage(context.Background(), "Students", nil, 0, 10)
	if rmt.Failure(err) != rmt.FailureUnavailable {
		t.Errorf("exhausted retries should classify as unavailable, got %v", rmt.Failure(err))
	}
	if calls.Load() != 4 {
		t.Errorf("got %d calls, want 4 (initial plus 3 retries)", calls.Load())
	}
}

func TestHTTPStore_DoesNotRetryRejections(t *testing.T) {
	var calls atomic.Int32
	s, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	err := s.DeleteRecord(context.Background(), "Students", "missing")
	if rmt.Failure(err) != rmt.FailureRejected {
		t.Errorf("404 should classify as rejected, got %v", rmt.Failure(err))
	}
	if calls.Load() != 1 {
		t.Errorf("got %d calls, want 1", calls.Load())
	}
}

func TestHTTPStore_DeleteRecord(t *testing.T) {
	var gotMethod, gotPath string
	s, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	if err := s.DeleteRecord(context.Background(), "Students", "s1"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/collections/Students/records/s1" {
		t.Errorf("got %s %s", gotMethod, gotPath)
	}
}

func TestHTTPStore_UpdateRecord(t *testing.T) {
	var gotMethod string
	var gotBody map[string]map[string]string
	s, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
	})

	err := s.UpdateRecord(context.Background(), "Students", "s1", map[string]string{"Email": ""})
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", gotMethod)
	}
	if v, ok := gotBody["fields"]["Email"]; !ok || v != "" {
		t.Errorf("body fields = %v, want Email blanked", gotBody["fields"])
	}
}

func TestHTTPStore_CreateRecord(t *testing.T) {
	s, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "new-1"})
	})

	id, err := s.CreateRecord(context.Background(), "StudentsArchive", map[string]string{"Email": "jane@school.org"})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if id != "new-1" {
		t.Errorf("id = %q, want new-1", id)
	}
}

func TestHTTPStore_ContextCancellation(t *testing.T) {
	s, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := s.FetchPage(ctx, "Students", nil, 0, 10)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !errors.Is(err, context.Canceled) && rmt.Failure(err) != rmt.FailureUnavailable {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewHTTPStore_RequiresBaseURL(t *testing.T) {
	if _, err := store.NewHTTPStore(store.Config{}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
}
