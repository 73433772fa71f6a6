package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jamesruggles/carbonara/internal/database"
	"github.com/jamesruggles/carbonara/internal/display"
	"github.com/jamesruggles/carbonara/internal/parser"
	"github.com/jamesruggles/carbonara/internal/registry"
	"github.com/jamesruggles/carbonara/internal/report"
	"github.com/jamesruggles/carbonara/internal/scanner"
	"github.com/jamesruggles/carbonara/internal/tools"
)

const recentRunsLimit = 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// projectParam reads the optional ?project= filter.
func projectParam(r *http.Request) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("project"))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.New("invalid project id")
	}
	return &id, nil
}

// --- Projects ---

// handleAPIProjects handles /api/projects (collection)
func (s *Server) handleAPIProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		projects, err := s.db.ListProjects(r.Context())
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if projects == nil {
			projects = []database.Project{}
		}
		writeJSON(w, http.StatusOK, projects)

	case http.MethodPost:
		var req struct {
			Name     string         `json:"name"`
			Path     string         `json:"path"`
			Metadata map[string]any `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if req.Name == "" || req.Path == "" {
			writeError(w, http.StatusBadRequest, "name and path are required")
			return
		}
		existing, err := s.db.GetProject(r.Context(), req.Path)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if existing != nil {
			writeJSON(w, http.StatusConflict, existing)
			return
		}
		id, err := s.db.CreateProject(r.Context(), req.Name, req.Path, req.Metadata)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		p, err := s.db.GetProjectByID(r.Context(), id)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAPIProject handles /api/projects/{id} (single resource)
func (s *Server) handleAPIProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	p, err := s.db.GetProjectByID(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Assessment data ---

type importRequest struct {
	Tool      string          `json:"tool"`
	Target    string          `json:"target"`
	ProjectID *int64          `json:"projectId"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
}

// rawBytes returns the report bytes. A JSON string carries non-JSON output
// such as YAML.
func (req importRequest) rawBytes() ([]byte, error) {
	trimmed := strings.TrimSpace(string(req.Data))
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(req.Data, &text); err != nil {
			return nil, err
		}
		return []byte(text), nil
	}
	return []byte(trimmed), nil
}

func (s *Server) handleAPIAssessments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		projectID, err := projectParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		records, err := s.db.GetAssessmentData(r.Context(), projectID, r.URL.Query().Get("tool"))
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if records == nil {
			records = []database.AssessmentData{}
		}
		writeJSON(w, http.StatusOK, records)

	case http.MethodPost:
		var req importRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if req.Tool == "" || len(req.Data) == 0 {
			writeError(w, http.StatusBadRequest, "tool and data are required")
			return
		}
		raw, err := req.rawBytes()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid data")
			return
		}
		if _, ok := s.tools.Tool(req.Tool); !ok {
			writeError(w, http.StatusBadRequest, "unknown tool: "+req.Tool)
			return
		}
		out, err := s.executor.Import(r.Context(), scanner.ImportRequest{
			ToolID:    req.Tool,
			Raw:       raw,
			Target:    req.Target,
			ProjectID: req.ProjectID,
			Source:    req.Source,
		})
		var pe *parser.ParseError
		switch {
		case errors.As(err, &pe):
			writeError(w, http.StatusUnprocessableEntity, pe.Error())
			return
		case err != nil:
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)

	case http.MethodDelete:
		source := r.URL.Query().Get("source")
		if source == "" {
			writeError(w, http.StatusBadRequest, "source is required")
			return
		}
		n, err := s.db.DeleteAssessmentDataBySource(r.Context(), source)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAPIAssessment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid assessment id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, err := s.db.GetAssessmentDataByID(r.Context(), id)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if record == nil {
			writeError(w, http.StatusNotFound, "assessment not found")
			return
		}
		writeJSON(w, http.StatusOK, record)

	case http.MethodDelete:
		deleted, err := s.db.DeleteAssessmentData(r.Context(), id)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, "assessment not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAPIAssessmentDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid assessment id")
		return
	}
	writeJSON(w, http.StatusOK, s.display.Details(r.Context(), id))
}

func (s *Server) handleAPIGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	projectID, err := projectParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.display.Groups(r.Context(), projectID))
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := s.db.GetStats(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Database *database.Stats `json:"database"`
		Display  display.Summary `json:"display"`
	}{stats, s.display.Summary(r.Context(), projectID)})
}

// --- Tools and runs ---

type toolInfo struct {
	registry.Tool
	Status tools.ToolStatus `json:"status"`
}

func (s *Server) handleAPITools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	list := s.tools.Tools()
	statuses := tools.DetectAll(r.Context(), list)
	out := make([]toolInfo, len(list))
	for i, t := range list {
		out[i] = toolInfo{Tool: t, Status: statuses[i]}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		runs, err := s.db.ListRecentRuns(r.Context(), recentRunsLimit)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if runs == nil {
			runs = []database.ToolRun{}
		}
		writeJSON(w, http.StatusOK, runs)

	case http.MethodPost:
		var req scanner.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if req.ToolID == "" || req.Target == "" {
			writeError(w, http.StatusBadRequest, "tool and target are required")
			return
		}
		runID, err := s.executor.Start(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID, "status": database.RunPending})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAPIRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		run, err := s.db.GetRun(r.Context(), runID)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, http.StatusOK, run)

	case http.MethodDelete:
		if !s.executor.Cancel(runID) {
			writeError(w, http.StatusConflict, "run is not active")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- Reports ---

func (s *Server) handleAPIReports(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		projectID, err := projectParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		reports, err := s.db.ListReports(r.Context(), projectID)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if reports == nil {
			reports = []database.Report{}
		}
		writeJSON(w, http.StatusOK, reports)

	case http.MethodPost:
		var req struct {
			ProjectID *int64 `json:"projectId"`
			Format    string `json:"format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if req.Format == "" {
			req.Format = report.FormatMarkdown
		}
		valid := false
		for _, f := range report.Formats() {
			valid = valid || f == req.Format
		}
		if !valid {
			writeError(w, http.StatusBadRequest, "format must be one of "+strings.Join(report.Formats(), ", "))
			return
		}

		rpt, err := s.reportGen.Save(r.Context(), req.ProjectID, req.Format)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rpt)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
