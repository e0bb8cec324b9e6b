package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordJobAndNotification(t *testing.T) {
	m := New()
	m.RecordJob("IMPORT", "succeeded")
	m.RecordJob("IMPORT", "succeeded")
	m.RecordNotification("webhook", nil)
	m.RecordNotification("webhook", errors.New("boom"))

	if got := testutil.ToFloat64(m.Jobs.WithLabelValues("IMPORT", "succeeded")); got != 2 {
		t.Fatalf("expected 2 import jobs, got %v", got)
	}
	if got := testutil.ToFloat64(m.Notifications.WithLabelValues("webhook", "error")); got != 1 {
		t.Fatalf("expected 1 failed notification, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RecordsImported.Add(3)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "repairdesk_records_imported_total 3") {
		t.Fatalf("missing imported counter in output:\n%s", body)
	}
}
