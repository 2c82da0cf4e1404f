package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC) }

	handler, err := New(Config{Engine: eng, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	return testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// doJSON sends a request and decodes the response body into out when non-nil.
func (ts testServer) doJSON(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "test-suite")
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type errEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (ts testServer) seedClient(t *testing.T, id string, billingRate float64) {
	t.Helper()
	body := map[string]any{"id": id, "name": "Client " + id, "email": id + "@example.com"}
	if billingRate > 0 {
		body["billing_rate"] = billingRate
	}
	if code := ts.doJSON(t, http.MethodPost, "/v0/clients", body, nil); code != http.StatusCreated {
		t.Fatalf("seed client: status %d", code)
	}
}

func (ts testServer) seedWorker(t *testing.T, id string, rate float64) {
	t.Helper()
	body := map[string]any{"id": id, "name": "Worker " + id, "hourly_rate": rate}
	if code := ts.doJSON(t, http.MethodPost, "/v0/workers", body, nil); code != http.StatusCreated {
		t.Fatalf("seed worker: status %d", code)
	}
}

func (ts testServer) seedContract(t *testing.T, id, clientID string, hours float64) {
	t.Helper()
	body := map[string]any{
		"id": id, "client_id": clientID, "order_number": "ord-" + id, "total_hours": hours,
		"start_date": "2026-01-01T00:00:00Z", "end_date": "2026-12-31T00:00:00Z",
	}
	if code := ts.doJSON(t, http.MethodPost, "/v0/contracts", body, nil); code != http.StatusCreated {
		t.Fatalf("seed contract: status %d", code)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	var body map[string]string
	if code := ts.doJSON(t, http.MethodGet, "/v0/health", nil, &body); code != http.StatusOK {
		t.Fatalf("health: status %d", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("health body = %v", body)
	}
}

func TestWorkerCRUD(t *testing.T) {
	ts := newTestServer(t)

	var created domain.Worker
	code := ts.doJSON(t, http.MethodPost, "/v0/workers", map[string]any{
		"name": "Ada", "hourly_rate": 42.5, "specialty": "electrical",
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	if created.ID == "" || created.HourlyRate != 42.5 {
		t.Fatalf("created = %+v", created)
	}

	var got domain.Worker
	if code := ts.doJSON(t, http.MethodGet, "/v0/workers/"+created.ID, nil, &got); code != http.StatusOK {
		t.Fatalf("get: status %d", code)
	}
	if got.Name != "Ada" {
		t.Fatalf("got = %+v", got)
	}

	var updated domain.Worker
	if code := ts.doJSON(t, http.MethodPatch, "/v0/workers/"+created.ID, map[string]any{"hourly_rate": 50.0}, &updated); code != http.StatusOK {
		t.Fatalf("patch: status %d", code)
	}
	if updated.HourlyRate != 50 {
		t.Fatalf("updated rate = %v", updated.HourlyRate)
	}

	var envelope errEnvelope
	if code := ts.doJSON(t, http.MethodGet, "/v0/workers/missing", nil, &envelope); code != http.StatusNotFound {
		t.Fatalf("missing: status %d", code)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("missing code = %q", envelope.Error.Code)
	}

	if code := ts.doJSON(t, http.MethodDelete, "/v0/workers/"+created.ID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete: status %d", code)
	}
}

func TestActivityLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.seedClient(t, "c1", 50)
	ts.seedWorker(t, "w1", 40)
	ts.seedContract(t, "k1", "c1", 10)

	var a domain.Activity
	code := ts.doJSON(t, http.MethodPost, "/v0/activities", map[string]any{
		"title": "install", "client_id": "c1", "contract_id": "k1",
		"scheduled_start": "2026-01-10T08:00:00Z", "scheduled_end": "2026-01-10T12:00:00Z",
	}, &a)
	if code != http.StatusCreated {
		t.Fatalf("create activity: status %d", code)
	}
	if a.Status != domain.ActivityUnassigned || a.DurationHours != 4 {
		t.Fatalf("created = %+v", a)
	}

	if code := ts.doJSON(t, http.MethodPost, "/v0/activities/"+a.ID+"/assign", map[string]any{"worker_id": "w1"}, &a); code != http.StatusOK {
		t.Fatalf("assign: status %d", code)
	}
	if a.Status != domain.ActivityScheduled {
		t.Fatalf("after assign = %+v", a)
	}

	for _, s := range []string{"in_progress", "done", "verified"} {
		if code := ts.doJSON(t, http.MethodPatch, "/v0/activities/"+a.ID+"/status", map[string]any{"status": s}, &a); code != http.StatusOK {
			t.Fatalf("status %s: code %d", s, code)
		}
	}

	var hours engine.HoursSummary
	if code := ts.doJSON(t, http.MethodGet, "/v0/contracts/k1/hours", nil, &hours); code != http.StatusOK {
		t.Fatalf("hours: status %d", code)
	}
	if hours.UsedHours != 4 || hours.RemainingHours != 6 {
		t.Fatalf("hours = %+v", hours)
	}

	var inv domain.Invoice
	code = ts.doJSON(t, http.MethodPost, "/v0/invoices/client", map[string]any{
		"entity_id": "c1", "period_start": "2026-01-01T00:00:00Z", "period_end": "2026-02-01T00:00:00Z",
	}, &inv)
	if code != http.StatusCreated {
		t.Fatalf("invoice: status %d", code)
	}
	if inv.TotalAmount != 200 {
		t.Fatalf("invoice total = %v", inv.TotalAmount)
	}

	if code := ts.doJSON(t, http.MethodGet, "/v0/activities/"+a.ID, nil, &a); code != http.StatusOK {
		t.Fatalf("get activity: status %d", code)
	}
	if a.Status != domain.ActivityInvoiced {
		t.Fatalf("final status = %s", a.Status)
	}
}

func TestAvailabilityEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedClient(t, "c1", 0)
	ts.seedWorker(t, "w1", 40)
	code := ts.doJSON(t, http.MethodPost, "/v0/activities", map[string]any{
		"title": "busy", "client_id": "c1", "worker_id": "w1",
		"scheduled_start": "2026-01-10T10:00:00Z", "scheduled_end": "2026-01-10T12:00:00Z",
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("seed activity: status %d", code)
	}

	var res engine.AvailabilityResult
	code = ts.doJSON(t, http.MethodPost, "/v0/availability/check", map[string]any{
		"worker_id": "w1", "scheduled_start": "2026-01-10T11:00:00Z", "scheduled_end": "2026-01-10T13:00:00Z",
	}, &res)
	if code != http.StatusOK {
		t.Fatalf("check: status %d", code)
	}
	if res.Available || len(res.ConflictingActivities) != 1 {
		t.Fatalf("result = %+v", res)
	}

	code = ts.doJSON(t, http.MethodPost, "/v0/availability/check", map[string]any{
		"worker_id": "w1", "scheduled_start": "2026-01-10T13:00:00Z", "scheduled_end": "2026-01-10T15:00:00Z",
	}, &res)
	if code != http.StatusOK || !res.Available {
		t.Fatalf("free window: code %d result %+v", code, res)
	}
}

func TestConflictEnvelope(t *testing.T) {
	ts := newTestServer(t)
	ts.seedClient(t, "c1", 0)
	ts.seedWorker(t, "w1", 40)

	var first domain.Activity
	ts.doJSON(t, http.MethodPost, "/v0/activities", map[string]any{
		"title": "first", "client_id": "c1", "worker_id": "w1",
		"scheduled_start": "2026-01-10T10:00:00Z", "scheduled_end": "2026-01-10T12:00:00Z",
	}, &first)

	var envelope errEnvelope
	code := ts.doJSON(t, http.MethodPost, "/v0/activities", map[string]any{
		"title": "second", "client_id": "c1", "worker_id": "w1",
		"scheduled_start": "2026-01-10T11:00:00Z", "scheduled_end": "2026-01-10T13:00:00Z",
	}, &envelope)
	if code != http.StatusConflict {
		t.Fatalf("overlap: status %d", code)
	}
	if envelope.Error.Code != "conflict" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
	ids, ok := envelope.Error.Details["conflicting_activity_ids"].([]any)
	if !ok || len(ids) != 1 || ids[0] != first.ID {
		t.Fatalf("details = %v", envelope.Error.Details)
	}
}

func TestCapacityEnvelope(t *testing.T) {
	ts := newTestServer(t)
	ts.seedClient(t, "c1", 0)
	ts.seedContract(t, "k1", "c1", 5)

	var envelope errEnvelope
	code := ts.doJSON(t, http.MethodPost, "/v0/activities", map[string]any{
		"title": "too big", "client_id": "c1", "contract_id": "k1",
		"scheduled_start": "2026-01-10T08:00:00Z", "scheduled_end": "2026-01-10T16:00:00Z",
	}, &envelope)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("overdraw: status %d", code)
	}
	if envelope.Error.Code != "capacity_exceeded" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
	if envelope.Error.Details["contract_id"] != "k1" {
		t.Fatalf("details = %v", envelope.Error.Details)
	}
	if got := envelope.Error.Details["requested_hours"]; got != 8.0 {
		t.Fatalf("requested_hours = %v", got)
	}
}

func TestBadRequestEnvelope(t *testing.T) {
	ts := newTestServer(t)
	ts.seedClient(t, "c1", 0)

	var envelope errEnvelope
	code := ts.doJSON(t, http.MethodPost, "/v0/activities", map[string]any{
		"title": "x", "client_id": "c1",
		"scheduled_start": "not-a-timestamp", "scheduled_end": "2026-01-10T12:00:00Z",
	}, &envelope)
	if code != http.StatusBadRequest {
		t.Fatalf("bad timestamp: status %d", code)
	}
	if envelope.Error.Code != "bad_request" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
}

func TestForceQueryParam(t *testing.T) {
	ts := newTestServer(t)
	ts.seedClient(t, "c1", 0)
	ts.seedWorker(t, "w1", 40)

	var a domain.Activity
	ts.doJSON(t, http.MethodPost, "/v0/activities", map[string]any{
		"title": "job", "client_id": "c1", "worker_id": "w1",
		"scheduled_start": "2026-01-10T10:00:00Z", "scheduled_end": "2026-01-10T12:00:00Z",
	}, &a)

	// Jumping scheduled -> done is rejected without force.
	var envelope errEnvelope
	if code := ts.doJSON(t, http.MethodPatch, "/v0/activities/"+a.ID+"/status", map[string]any{"status": "done"}, &envelope); code != http.StatusConflict {
		t.Fatalf("skip without force: status %d", code)
	}
	if code := ts.doJSON(t, http.MethodPatch, "/v0/activities/"+a.ID+"/status?force=true", map[string]any{"status": "done"}, &a); code != http.StatusOK {
		t.Fatalf("skip with force: status %d", code)
	}
	if a.Status != domain.ActivityDone {
		t.Fatalf("status = %s", a.Status)
	}
}

func TestInvoiceStatusOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.seedClient(t, "c1", 0)

	var inv domain.Invoice
	code := ts.doJSON(t, http.MethodPost, "/v0/invoices/client", map[string]any{
		"entity_id": "c1", "period_start": "2026-01-01T00:00:00Z", "period_end": "2026-02-01T00:00:00Z",
	}, &inv)
	if code != http.StatusCreated {
		t.Fatalf("generate: status %d", code)
	}

	if code := ts.doJSON(t, http.MethodPatch, "/v0/invoices/"+inv.ID+"/status", map[string]any{"status": "sent"}, &inv); code != http.StatusOK {
		t.Fatalf("sent: status %d", code)
	}
	if inv.Status != domain.InvoiceSent {
		t.Fatalf("status = %s", inv.Status)
	}

	var envelope errEnvelope
	if code := ts.doJSON(t, http.MethodPatch, "/v0/invoices/"+inv.ID+"/status", map[string]any{"status": "draft"}, &envelope); code != http.StatusConflict {
		t.Fatalf("rewind: status %d", code)
	}

	var listed []domain.Invoice
	if code := ts.doJSON(t, http.MethodGet, "/v0/invoices?kind=client_bill", nil, &listed); code != http.StatusOK {
		t.Fatalf("list: status %d", code)
	}
	if len(listed) != 1 || listed[0].ID != inv.ID {
		t.Fatalf("listed = %+v", listed)
	}
}

func TestEventsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedClient(t, "c1", 0)
	ts.seedWorker(t, "w1", 40)

	var evs []domain.Event
	if code := ts.doJSON(t, http.MethodGet, "/v0/events?limit=10", nil, &evs); code != http.StatusOK {
		t.Fatalf("events: status %d", code)
	}
	if len(evs) != 2 {
		t.Fatalf("events = %d, want 2", len(evs))
	}
	// Newest first.
	if evs[0].Type != "worker.create" || evs[1].Type != "client.create" {
		t.Fatalf("order = %s, %s", evs[0].Type, evs[1].Type)
	}
	if evs[0].ActorID != "test-suite" {
		t.Fatalf("actor = %s", evs[0].ActorID)
	}
}

func TestOpenAPIAndDocs(t *testing.T) {
	ts := newTestServer(t)
	resp, err := ts.client.Get(ts.URL + "/v0/openapi.json")
	if err != nil {
		t.Fatalf("openapi: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("openapi: status %d", resp.StatusCode)
	}
	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("openapi decode: %v", err)
	}
	if _, ok := doc["paths"]; !ok {
		t.Fatal("openapi missing paths")
	}

	resp2, err := ts.client.Get(ts.URL + "/docs")
	if err != nil {
		t.Fatalf("docs: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("docs: status %d", resp2.StatusCode)
	}
}
