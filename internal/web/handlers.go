package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"calevents/internal/config"
	"calevents/internal/entry"
	"calevents/internal/model"
)

type entryDTO struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Available bool            `json:"available"`
	Calendars []string        `json:"active_calendars"`
	Options   config.Settings `json:"options"`
}

type sensorDTO struct {
	UniqueID   string         `json:"unique_id"`
	Name       string         `json:"name"`
	State      any            `json:"state"`
	Attributes map[string]any `json:"attributes"`
	Available  bool           `json:"available"`
}

func newEntryDTO(e *entry.Entry) entryDTO {
	calendars := e.ActiveCalendars()
	if calendars == nil {
		calendars = []string{}
	}
	return entryDTO{
		ID:        e.ID(),
		Title:     e.Title(),
		Available: e.Available(),
		Calendars: calendars,
		Options:   e.Settings(),
	}
}

func (s *Server) lookupEntry(w http.ResponseWriter, r *http.Request) (*entry.Entry, bool) {
	e, err := s.entries.Get(chi.URLParam(r, "entryID"))
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return e, true
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sources": s.registry.IDs()})
}

func (s *Server) handleEntries(w http.ResponseWriter, _ *http.Request) {
	list := s.entries.List()
	out := make([]entryDTO, 0, len(list))
	for _, e := range list {
		out = append(out, newEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.entries.Remove(r.Context(), chi.URLParam(r, "entryID")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupEntry(w, r)
	if !ok {
		return
	}
	sensors := e.Sensors()
	out := make([]sensorDTO, 0, len(sensors))
	for _, sn := range sensors {
		out = append(out, sensorDTO{
			UniqueID:   sn.UniqueID(),
			Name:       sn.Name(),
			State:      sn.State(),
			Attributes: sn.Attributes(),
			Available:  sn.Available(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry": newEntryDTO(e), "sensors": out})
}

func (s *Server) handleCalendarEvent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupEntry(w, r)
	if !ok {
		return
	}
	cal := e.Calendar()
	writeJSON(w, http.StatusOK, map[string]any{
		"unique_id": cal.UniqueID(),
		"name":      cal.Name(),
		"event":     cal.Event(),
	})
}

// GET /api/entries/{id}/calendar/events?start=...&end=...
//   - start, end: RFC 3339 date-times or dates; events intersecting
//     [start, end) are returned.
func (s *Server) handleCalendarEvents(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupEntry(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	start, err := s.parseRangeTime(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start: "+err.Error())
		return
	}
	end, err := s.parseRangeTime(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end: "+err.Error())
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end is before start")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": e.Calendar().Events(start, end)})
}

// parseRangeTime keeps the offset of RFC 3339 values so that events are
// returned in the caller's zone.
func (s *Server) parseRangeTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("missing value")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, _, err := model.ParseBoundary(v, s.location)
	return t, err
}

type toggleRequest struct {
	SaveSettings bool `json:"save_settings"`
}

func (s *Server) handleToggleShowAsTimeTo(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupEntry(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := e.ToggleShowAsTimeTo(r.Context(), req.SaveSettings); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newEntryDTO(e))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupEntry(w, r)
	if !ok {
		return
	}
	// The outcome is reported through availability.
	_ = e.Refresh(r.Context())
	writeJSON(w, http.StatusOK, newEntryDTO(e))
}

func (s *Server) handleStartUserFlow(w http.ResponseWriter, r *http.Request) {
	res, err := s.flows.StartUser(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStartOptionsFlow(w http.ResponseWriter, r *http.Request) {
	res, err := s.flows.StartOptions(r.Context(), chi.URLParam(r, "entryID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubmitFlow(w http.ResponseWriter, r *http.Request) {
	var input map[string]any
	if err := decodeOptionalJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	res, err := s.flows.Submit(r.Context(), chi.URLParam(r, "flowID"), input)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAbortFlow(w http.ResponseWriter, r *http.Request) {
	s.flows.Abort(chi.URLParam(r, "flowID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	list, err := s.issues.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": list})
}

func (s *Server) handleDismissIssue(w http.ResponseWriter, r *http.Request) {
	if err := s.issues.Dismiss(r.Context(), chi.URLParam(r, "issueID")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeOptionalJSON decodes the body into v; an empty body leaves v alone.
func decodeOptionalJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
