package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"repairdesk/internal/importer"
	"repairdesk/internal/ledger"
	"repairdesk/internal/servicehistory"
	"repairdesk/internal/store"
)

func (r *Router) records(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		list, err := r.store.ListRecords(req.Context(), queryLimit(req, 100, 1000))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []ledger.ServiceRecord{}
		}
		respondJSON(w, list)
	case http.MethodPost:
		r.createRecord(w, req)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// createRecord accepts one record in the ledger export format. It goes
// through the same schema and validation as file imports. A record posted
// without an id gets a random one, so identical posts stay separate services.
func (r *Router) createRecord(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	doc := append(append([]byte("["), bytes.TrimSpace(body)...), ']')
	res, err := importer.Parse(doc, importer.FormatJSON)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(res.Rejected) > 0 {
		http.Error(w, res.Rejected[0].Error, http.StatusBadRequest)
		return
	}
	if len(res.Records) != 1 {
		http.Error(w, "expected exactly one record", http.StatusBadRequest)
		return
	}
	rec := res.Records[0]
	var posted struct {
		ID *string `json:"id"`
	}
	if err := json.Unmarshal(body, &posted); err == nil && (posted.ID == nil || strings.TrimSpace(*posted.ID) == "") {
		rec.ID = uuid.NewString()
	}
	if err := r.store.UpsertRecord(req.Context(), rec, "api"); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	r.metrics.RecordsImported.Inc()
	if _, err := r.history.Evaluate(req.Context(), []ledger.Contact{ledger.ContactOf(rec)}); err != nil {
		r.log.Warn("evaluate after insert failed", "record", rec.ID, "err", err)
	}
	respondJSONStatus(w, http.StatusCreated, rec)
}

func (r *Router) recordDamage(w http.ResponseWriter, req *http.Request) {
	id := req.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	rec, err := r.store.GetRecord(req.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, req)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	labels, source := servicehistory.ResolveDamage(rec)
	key, _, _ := servicehistory.DeviceKey(rec)
	respondJSON(w, map[string]any{
		"id":         rec.ID,
		"device_key": key,
		"labels":     labels,
		"source":     source,
	})
}
