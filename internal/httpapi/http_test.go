package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"repairdesk/internal/config"
	"repairdesk/internal/events"
	"repairdesk/internal/jobs"
	"repairdesk/internal/ledger"
	"repairdesk/internal/logger"
	"repairdesk/internal/metrics"
	"repairdesk/internal/pipeline"
	"repairdesk/internal/servicehistory"
	"repairdesk/internal/sparepart"
	"repairdesk/internal/store"
	"repairdesk/internal/watch"
)

type testEnv struct {
	handler http.Handler
	store   *store.Store
	runner  *jobs.Runner
	cfg     config.Config
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Config{
		InboxDir:      t.TempDir(),
		WorkDir:       t.TempDir(),
		JobQueueSize:  8,
		WorkerCount:   0,
		JobTimeoutSec: 5,
		BackfillLimit: 10,
		CORSOrigins:   []string{"https://pos.example.com"},
	}
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	m := metrics.New()
	log := logger.Discard()
	svc := servicehistory.NewService(st, events.NewBus(), m, log)
	runner := jobs.NewRunner(cfg, st, pipeline.BuildRegistry(cfg, st, svc, m), m, log)
	router := NewRouter(Deps{
		Config:  cfg,
		Store:   st,
		Runner:  runner,
		History: svc,
		Watcher: watch.New(cfg, runner, log),
		Metrics: m,
		Log:     log,
	})
	return &testEnv{handler: router.Handler(), store: st, runner: runner, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func seedBudi(t *testing.T, st *store.Store) {
	t.Helper()
	recs := []ledger.ServiceRecord{
		{ID: "1", CustomerName: "Budi", DeviceBrand: "Infinix", DeviceModel: "Hot 10", DamageTags: []string{"Mic"}},
		{ID: "2", CustomerName: "Budi", DeviceBrand: "Infinix", DeviceModel: "Hot 10", DamageTags: []string{"Mic"}},
		{ID: "3", CustomerName: "Budi", DeviceBrand: "Infinix", DeviceModel: "Hot 10", Complaint: "lcd pecah"},
		{ID: "4", CustomerName: "Budi", DeviceBrand: "Samsung", DeviceModel: "A02", DamageTags: []string{"LCD"}},
		{ID: "5", CustomerName: "Siti", DeviceBrand: "Oppo", DeviceModel: "A5"},
	}
	if err := st.UpsertRecords(context.Background(), recs, "seed"); err != nil {
		t.Fatal(err)
	}
}

func TestCustomerHistoryEndpoint(t *testing.T) {
	env := setupTest(t)
	seedBudi(t, env.store)

	rr := env.do(t, http.MethodGet, "/api/customers/history?name=Budi", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var res servicehistory.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.HasRepeatRisk || len(res.Summaries) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	first := res.Summaries[0]
	if first.DeviceKey != "Infinix Hot 10" || first.DamageBreakdown["Mic"] != 2 || first.DamageBreakdown["LCD"] != 1 {
		t.Fatalf("unexpected first summary %+v", first)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestCustomerHistoryRequiresContact(t *testing.T) {
	env := setupTest(t)
	if rr := env.do(t, http.MethodGet, "/api/customers/history", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCustomerHistoryUnknownIsEmpty(t *testing.T) {
	env := setupTest(t)
	rr := env.do(t, http.MethodGet, "/api/customers/history?phone=0000", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"summaries":[]`) {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestCustomerHistoryTextAndChart(t *testing.T) {
	env := setupTest(t)
	seedBudi(t, env.store)
	rr := env.do(t, http.MethodGet, "/api/customers/history.txt?name=Budi", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Infinix Hot 10") {
		t.Fatalf("unexpected text response %d %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/api/customers/chart?name=Budi", "")
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("unexpected chart response %d", rr.Code)
	}
}

func TestCreateRecord(t *testing.T) {
	env := setupTest(t)
	body := `{"customer_name":"Rina","customer_phone":"0899","device_brand":"Vivo","device_model":"Y12","complaint":"baterai drop","service_date":"2024-05-01"}`
	rr := env.do(t, http.MethodPost, "/api/records", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var rec ledger.ServiceRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated id")
	}

	rr = env.do(t, http.MethodGet, "/api/records/damage?id="+rec.ID, "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"source":"complaint"`) || !strings.Contains(rr.Body.String(), "Baterai") {
		t.Fatalf("unexpected damage response %d %s", rr.Code, rr.Body.String())
	}

	if rr := env.do(t, http.MethodGet, "/api/records?limit=5", ""); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Rina") {
		t.Fatalf("unexpected list response %d", rr.Code)
	}
}

func TestCreateRecordIdenticalPostsStaySeparate(t *testing.T) {
	env := setupTest(t)
	body := `{"customer_name":"Rina","device_brand":"Vivo","device_model":"Y12","complaint":"lcd","service_date":"2024-05-01"}`
	var ids []string
	for i := 0; i < 2; i++ {
		rr := env.do(t, http.MethodPost, "/api/records", body)
		if rr.Code != http.StatusCreated {
			t.Fatalf("post %d: status %d", i, rr.Code)
		}
		var rec ledger.ServiceRecord
		_ = json.Unmarshal(rr.Body.Bytes(), &rec)
		ids = append(ids, rec.ID)
	}
	if ids[0] == ids[1] {
		t.Fatalf("expected distinct ids, got %v", ids)
	}
	withID := `{"id":"svc-1","customer_name":"Rina","service_date":"2024-05-01"}`
	env.do(t, http.MethodPost, "/api/records", withID)
	env.do(t, http.MethodPost, "/api/records", withID)
	list, err := env.store.ListRecords(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 stored records, got %d", len(list))
	}
}

func TestCreateRecordValidation(t *testing.T) {
	env := setupTest(t)
	cases := []string{
		`{"customer_name":"","service_date":"2024-05-01"}`,
		`{"customer_name":"Rina"}`,
		`{"customer_name":42}`,
		``,
	}
	for _, body := range cases {
		if rr := env.do(t, http.MethodPost, "/api/records", body); rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rr.Code)
		}
	}
	if rr := env.do(t, http.MethodGet, "/api/records/damage?id=nope", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestSparepartRulesEndpoint(t *testing.T) {
	env := setupTest(t)
	rr := env.do(t, http.MethodGet, "/api/spareparts/rules?category=NonexistentCategory", "")
	var nr sparepart.NamedRule
	if err := json.Unmarshal(rr.Body.Bytes(), &nr); err != nil {
		t.Fatal(err)
	}
	if nr.Rule != sparepart.DefaultRule {
		t.Fatalf("expected default rule, got %+v", nr.Rule)
	}
	rr = env.do(t, http.MethodGet, "/api/spareparts/rules", "")
	var all []sparepart.NamedRule
	if err := json.Unmarshal(rr.Body.Bytes(), &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != len(sparepart.Categories()) {
		t.Fatalf("expected full table, got %d rows", len(all))
	}
}

func TestSparepartsCreateAppliesDefaults(t *testing.T) {
	env := setupTest(t)
	rr := env.do(t, http.MethodPost, "/api/spareparts", `{"name":"Kabel Type-C","category":"Kabel Data","brand":"Vivan","stock":5,"price":15000}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var p sparepart.Part
	_ = json.Unmarshal(rr.Body.Bytes(), &p)
	if p.Brand != sparepart.NoneValue || p.ID == "" {
		t.Fatalf("unexpected part %+v", p)
	}
	if rr := env.do(t, http.MethodPost, "/api/spareparts", `{"category":"LCD"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing name, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/spareparts?category=kabel%20data", ""); !strings.Contains(rr.Body.String(), "Kabel Type-C") {
		t.Fatalf("unexpected list %s", rr.Body.String())
	}
}

func TestOpsEnqueueEndpoint(t *testing.T) {
	env := setupTest(t)
	rr := env.do(t, http.MethodPost, "/ops/jobs/enqueue", `{"subject":"export.json","stage":"IMPORT","params":{}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var job store.Job
	_ = json.Unmarshal(rr.Body.Bytes(), &job)
	if job.ID == 0 || job.Stage != "IMPORT" {
		t.Fatalf("unexpected job %+v", job)
	}
	if len(env.runner.Logs(job.ID)) != 0 {
		t.Fatalf("expected no logs yet")
	}
	if rr := env.do(t, http.MethodGet, "/ops/jobs/"+itoa(job.ID), ""); rr.Code != http.StatusOK {
		t.Fatalf("job detail status %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/ops/jobs/"+itoa(job.ID)+"/logs", ""); rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("unexpected logs response %d %s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodPost, "/ops/jobs/enqueue", `{"stage":"TRANSCRIBE"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown stage, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/ops/jobs/999", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestOpsSweepAndBackfill(t *testing.T) {
	env := setupTest(t)
	if rr := env.do(t, http.MethodPost, "/ops/sweep", ""); rr.Code != http.StatusOK {
		t.Fatalf("sweep status %d", rr.Code)
	}
	if err := os.WriteFile(filepath.Join(env.cfg.InboxDir, "a.json"), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	rr := env.do(t, http.MethodPost, "/ops/backfill", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"enqueued":1`) {
		t.Fatalf("unexpected backfill response %d %s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodGet, "/ops/backfill", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/ops/status", ""); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"queue"`) {
		t.Fatalf("unexpected status response %d", rr.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTest(t)
	if rr := env.do(t, http.MethodGet, "/ops/health", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTest(t)
	rr := env.do(t, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "repairdesk_queue_length") {
		t.Fatalf("unexpected metrics response %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupTest(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/customers/history", nil)
	req.Header.Set("Origin", "https://pos.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://pos.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
