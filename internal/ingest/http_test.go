package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/good-yellow-bee/logtrap/internal/models"
	"github.com/good-yellow-bee/logtrap/internal/storage"
)

// fakeEntryRepo records inserted entries.
type fakeEntryRepo struct {
	inserted  []*models.LogEntry
	insertErr error
}

func (f *fakeEntryRepo) InsertBatch(ctx context.Context, entries []*models.LogEntry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, entries...)
	return nil
}

func (f *fakeEntryRepo) CountMatching(ctx context.Context, filter storage.CountFilter) (int64, error) {
	return 0, nil
}

func (f *fakeEntryRepo) Query(ctx context.Context, filter storage.EntryFilter) ([]*models.LogEntry, error) {
	return nil, nil
}

func (f *fakeEntryRepo) DeleteBefore(ctx context.Context, teamID string, before time.Time) (int64, error) {
	return 0, nil
}

// fakePublisher records published entries.
type fakePublisher struct {
	published []*models.LogEntry
	err       error
}

func (f *fakePublisher) Publish(entry *models.LogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, entry)
	return nil
}

type httpFixture struct {
	repo      *fakeEntryRepo
	publisher *fakePublisher
	handler   http.Handler
}

func newHTTPFixture() *httpFixture {
	repo := &fakeEntryRepo{}
	publisher := &fakePublisher{}
	srv := NewHTTPServer(HTTPConfig{RatePerSecond: 1000, RateBurst: 1000}, repo, publisher)
	return &httpFixture{repo: repo, publisher: publisher, handler: srv.setupRouter()}
}

func (fx *httpFixture) post(t *testing.T, path, teamID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	if teamID != "" {
		req.Header.Set(TeamHeader, teamID)
	}
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

func validEntryRequest() entryRequest {
	return entryRequest{
		Level:       "ERROR",
		Message:     "connection refused",
		ServiceName: "payments",
	}
}

func TestIngestSingleEntry(t *testing.T) {
	fx := newHTTPFixture()

	rec := fx.post(t, "/api/v1/ingest", "team-1", validEntryRequest())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	if len(fx.repo.inserted) != 1 {
		t.Fatalf("inserted = %d, want 1", len(fx.repo.inserted))
	}
	entry := fx.repo.inserted[0]
	if entry.TeamID != "team-1" {
		t.Errorf("team = %q, want team-1", entry.TeamID)
	}
	if entry.ID == "" || entry.Timestamp.IsZero() {
		t.Error("expected id and timestamp to be assigned")
	}
	if len(fx.publisher.published) != 1 {
		t.Errorf("published = %d, want 1", len(fx.publisher.published))
	}
}

func TestIngestRequiresTeamHeader(t *testing.T) {
	fx := newHTTPFixture()

	rec := fx.post(t, "/api/v1/ingest", "", validEntryRequest())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(fx.repo.inserted) != 0 {
		t.Error("nothing should be stored without a team")
	}
}

func TestIngestRejectsUnknownLevel(t *testing.T) {
	fx := newHTTPFixture()

	req := validEntryRequest()
	req.Level = "LOUD"
	rec := fx.post(t, "/api/v1/ingest", "team-1", req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestIngestRejectsMissingFields(t *testing.T) {
	fx := newHTTPFixture()

	req := validEntryRequest()
	req.Message = "  "
	if rec := fx.post(t, "/api/v1/ingest", "team-1", req); rec.Code != http.StatusBadRequest {
		t.Errorf("blank message: status = %d, want 400", rec.Code)
	}

	req = validEntryRequest()
	req.ServiceName = ""
	if rec := fx.post(t, "/api/v1/ingest", "team-1", req); rec.Code != http.StatusBadRequest {
		t.Errorf("missing service: status = %d, want 400", rec.Code)
	}
}

func TestIngestBatch(t *testing.T) {
	fx := newHTTPFixture()

	batch := batchRequest{Entries: []entryRequest{validEntryRequest(), validEntryRequest()}}
	rec := fx.post(t, "/api/v1/ingest/batch", "team-1", batch)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if len(fx.repo.inserted) != 2 {
		t.Errorf("inserted = %d, want 2", len(fx.repo.inserted))
	}
}

func TestIngestBatchSizeLimit(t *testing.T) {
	fx := newHTTPFixture()

	batch := batchRequest{Entries: make([]entryRequest, MaxBatchSize+1)}
	for i := range batch.Entries {
		batch.Entries[i] = validEntryRequest()
	}
	rec := fx.post(t, "/api/v1/ingest/batch", "team-1", batch)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if len(fx.repo.inserted) != 0 {
		t.Error("oversized batch must not be stored")
	}
}

func TestIngestBatchIsAllOrNothing(t *testing.T) {
	fx := newHTTPFixture()

	bad := validEntryRequest()
	bad.Level = "SHOUTING"
	batch := batchRequest{Entries: []entryRequest{validEntryRequest(), bad}}
	rec := fx.post(t, "/api/v1/ingest/batch", "team-1", batch)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "entry 1") {
		t.Errorf("error should name the offending entry: %s", rec.Body)
	}
	if len(fx.repo.inserted) != 0 {
		t.Error("invalid batch must not be partially stored")
	}
}

func TestIngestStorageFailure(t *testing.T) {
	fx := newHTTPFixture()
	fx.repo.insertErr = errors.New("disk full")

	rec := fx.post(t, "/api/v1/ingest", "team-1", validEntryRequest())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if len(fx.publisher.published) != 0 {
		t.Error("unstored entries must not be published")
	}
}

func TestIngestSucceedsWhenQueueFull(t *testing.T) {
	fx := newHTTPFixture()
	fx.publisher.err = errors.New("queue full")

	rec := fx.post(t, "/api/v1/ingest", "team-1", validEntryRequest())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: storage succeeded", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	fx := newHTTPFixture()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRateLimitByTeam(t *testing.T) {
	repo := &fakeEntryRepo{}
	srv := NewHTTPServer(HTTPConfig{RatePerSecond: 0.001, RateBurst: 1}, repo, &fakePublisher{})
	handler := srv.setupRouter()

	post := func(team string) int {
		body, _ := json.Marshal(validEntryRequest())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewReader(body))
		req.Header.Set(TeamHeader, team)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := post("team-1"); code != http.StatusAccepted {
		t.Fatalf("first request: %d", code)
	}
	if code := post("team-1"); code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", code)
	}
	// Another team has its own bucket.
	if code := post("team-2"); code != http.StatusAccepted {
		t.Fatalf("other team = %d, want 202", code)
	}
}

func TestKafkaEntryValidationReuse(t *testing.T) {
	// toEntry is shared between the HTTP and Kafka boundaries.
	req := validEntryRequest()
	entry, err := req.toEntry("team-9")
	if err != nil {
		t.Fatalf("toEntry: %v", err)
	}
	if entry.TeamID != "team-9" || entry.Level != models.LevelError {
		t.Errorf("entry = %+v", entry)
	}

	req.Level = fmt.Sprintf("LEVEL_%d", 99)
	if _, err := req.toEntry("team-9"); err == nil {
		t.Error("expected error for unknown level")
	}
}
