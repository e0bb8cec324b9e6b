package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"repairdesk/internal/ledger"
	"repairdesk/internal/report"
	"repairdesk/internal/servicehistory"
)

func (r *Router) loadHistory(w http.ResponseWriter, req *http.Request) (ledger.Contact, servicehistory.Result, bool) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return ledger.Contact{}, servicehistory.Result{}, false
	}
	contact := contactFromQuery(req)
	res, err := r.history.History(req.Context(), contact)
	if errors.Is(err, servicehistory.ErrEmptyContact) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return contact, res, false
	}
	if err != nil {
		r.log.Error("customer history failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return contact, res, false
	}
	return contact, res, true
}

func (r *Router) customerHistory(w http.ResponseWriter, req *http.Request) {
	if _, res, ok := r.loadHistory(w, req); ok {
		respondJSON(w, res)
	}
}

func (r *Router) customerHistoryText(w http.ResponseWriter, req *http.Request) {
	contact, res, ok := r.loadHistory(w, req)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := report.Table(w, contact, res, time.Now()); err != nil {
		r.log.Error("write table", "err", err)
	}
}

func (r *Router) customerChart(w http.ResponseWriter, req *http.Request) {
	contact, res, ok := r.loadHistory(w, req)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	title := fmt.Sprintf("Service history: %s", firstNonEmpty(contact.Name, contact.Phone))
	if err := report.Chart(w, title, res); err != nil {
		r.log.Error("write chart", "err", err)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
