package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"repairdesk/internal/sparepart"
)

func (r *Router) sparepartRules(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if name := req.URL.Query().Get("category"); name != "" {
		respondJSON(w, sparepart.NamedRule{Category: name, Rule: sparepart.GetCategoryRules(name)})
		return
	}
	respondJSON(w, sparepart.AllRules())
}

func (r *Router) spareparts(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		list, err := r.store.ListSpareparts(req.Context(), req.URL.Query().Get("category"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []sparepart.Part{}
		}
		respondJSON(w, list)
	case http.MethodPost:
		var p sparepart.Part
		if err := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes)).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		p, err := sparepart.ApplyRules(p)
		var fe *sparepart.FieldError
		if errors.As(err, &fe) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if err := r.store.UpsertSparepart(req.Context(), p); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSONStatus(w, http.StatusCreated, p)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
