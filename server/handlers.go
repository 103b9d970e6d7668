package server

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/mo"
)

// parseTime reads an optional RFC 3339 query parameter.
func parseTime(r *http.Request, name string) (mo.Option[time.Time], error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return mo.None[time.Time](), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return mo.None[time.Time](), err
	}
	return mo.Some(t), nil
}

func parseIndex(r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.svc.Rules(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	out := make([]ruleDTO, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleToDTO(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.svc.Rule(r.Context(), r.PathValue("id"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleToDTO(rule))
}

func (s *Server) handlePutRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body ruleDTO
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.ID != "" && body.ID != id {
		writeError(w, http.StatusBadRequest, "rule ID does not match path")
		return
	}

	rule, err := body.toRule(id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if err := s.svc.SaveRule(r.Context(), rule); err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleToDTO(rule))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteRule(r.Context(), r.PathValue("id")); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity")
	if entityID == "" {
		writeError(w, http.StatusBadRequest, "missing entity parameter")
		return
	}

	rules, err := s.svc.ImportCalendar(r.Context(), entityID, http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	out := make([]ruleDTO, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleToDTO(rule))
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	horizon, err := parseTime(r, "horizon")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid horizon: "+err.Error())
		return
	}

	res, err := s.svc.ListInstances(r.Context(), r.PathValue("id"), horizon)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	now, err := parseTime(r, "now")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid now: "+err.Error())
		return
	}

	d, err := s.svc.Window(r.Context(), r.PathValue("id"), now.OrElse(s.now()))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, windowToDTO(d))
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.svc.ExportCalendar(r.Context(), r.PathValue("id"), &buf); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.Header().Set(headerContentType, mimeTypeCalendar)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := s.svc.ApplyChanges(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applyDTO{RuleID: id, Values: n})
}

func (s *Server) handlePutInstance(w http.ResponseWriter, r *http.Request) {
	index, ok := parseIndex(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}

	var body instanceRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	switch {
	case body.EntityID != "":
		ov, err := s.svc.OverrideWithEntity(r.Context(), id, index, body.EntityID)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ov)
	case body.Start != nil && body.End != nil:
		ov, err := s.svc.Reschedule(r.Context(), id, index, *body.Start, *body.End)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ov)
	default:
		writeError(w, http.StatusBadRequest, "either entity_id or both start and end are required")
	}
}

func (s *Server) handleRemoveInstance(w http.ResponseWriter, r *http.Request) {
	index, ok := parseIndex(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}

	ov, err := s.svc.RemoveInstance(r.Context(), r.PathValue("id"), index)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleRestoreInstance(w http.ResponseWriter, r *http.Request) {
	index, ok := parseIndex(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}

	if err := s.svc.RestoreDefault(r.Context(), r.PathValue("id"), index); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
