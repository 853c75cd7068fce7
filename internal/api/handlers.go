package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dokzlo13/xlightd/internal/command"
	"github.com/dokzlo13/xlightd/internal/controller"
	"github.com/dokzlo13/xlightd/internal/model"
)

// rowView exposes the flags the row JSON hides.
type rowView[R any] struct {
	Flash string                  `json:"flash"`
	Run   string                  `json:"run"`
	Alarm *controller.AlarmStatus `json:"alarm,omitempty"`
	Row   R                       `json:"row"`
}

func viewOf[R any](h model.Header, row R) rowView[R] {
	return rowView[R]{Flash: h.Flash.String(), Run: h.Run.String(), Row: row}
}

func scheduleView(row model.ScheduleRow, alarms map[model.UID]controller.AlarmStatus) rowView[model.ScheduleRow] {
	v := viewOf(row.Header, row)
	if status, ok := alarms[row.UID]; ok {
		v.Alarm = &status
	}
	return v
}

// classPaths maps list path segments to uid prefixes.
var classPaths = map[string]string{
	"rules":     "r",
	"schedules": "s",
	"scenarios": "n",
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ctrl.Stats(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeErr(w, &command.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	cmd, err := command.Decode(body)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.submit(w, r, cmd)
}

func (s *Server) handleKeyed(op model.OpFlag) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefix, ok := classPaths[chi.URLParam(r, "class")]
		if !ok {
			writeErr(w, fmt.Errorf("%q: %w", chi.URLParam(r, "class"), command.ErrUnknownClass))
			return
		}
		req := command.Request{UID: prefix + chi.URLParam(r, "uid"), Op: op.String()}
		cmd, err := req.Validate()
		if err != nil {
			writeErr(w, err)
			return
		}
		s.submit(w, r, cmd)
	}
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	cmd, err := command.Request{UID: "d", Op: "GET"}.Validate()
	if err != nil {
		writeErr(w, err)
		return
	}
	s.submit(w, r, cmd)
}

func (s *Server) handlePutDevice(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeErr(w, &command.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	var req command.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeErr(w, &command.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	req.UID, req.Op = "d", "PUT"
	cmd, err := req.Validate()
	if err != nil {
		writeErr(w, err)
		return
	}
	s.submit(w, r, cmd)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, cmd command.Command) {
	res, err := s.ctrl.Submit(r.Context(), cmd)
	if err != nil {
		writeErr(w, err)
		return
	}
	status := http.StatusOK
	if cmd.Op == model.OpPost {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ctrl.Rules(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]rowView[model.RuleRow], 0, len(rows))
	for _, row := range rows {
		out = append(out, viewOf(row.Header, row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ctrl.Schedules(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	alarms, err := s.ctrl.Alarms(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]rowView[model.ScheduleRow], 0, len(rows))
	for _, row := range rows {
		out = append(out, scheduleView(row, alarms))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ctrl.Scenarios(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]rowView[model.ScenarioRow], 0, len(rows))
	for _, row := range rows {
		out = append(out, viewOf(row.Header, row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ctrl.Stats(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeErr(w, &command.ValidationError{Field: "limit", Reason: "must be 1-1000"})
			return
		}
		limit = n
	}
	entries, err := s.history.Recent(limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	if entries == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
