package api

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/parsers"
	"bank-reconciliation-service/internal/reporter"
	"bank-reconciliation-service/pkg/errors"
)

const (
	bankStatementField   = "bank_statement"
	internalRecordsField = "internal_records"
)

// errorResponse is the body of every non-2xx response
type errorResponse struct {
	Status string           `json:"status"`
	Detail string           `json:"detail"`
	Code   errors.ErrorCode `json:"code,omitempty"`
}

// reconcileResponse is the report payload with a status marker
type reconcileResponse struct {
	Status string `json:"status"`
	*models.ReconciliationReport
}

type saveReportRequest struct {
	Name   string                       `json:"name"`
	Report *models.ReconciliationReport `json:"report"`
	// ReportData is accepted for clients of the earlier payload shape
	ReportData *models.ReconciliationReport `json:"reportData,omitempty"`
}

type saveReportResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps err onto a status code and writes it as JSON
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Status: "error", Detail: err.Error()}

	if recErr, ok := errors.AsReconcilerError(err); ok {
		status = recErr.HTTPStatus()
		resp.Code = recErr.Code
		resp.Detail = recErr.Message
		if recErr.Cause != nil && status != http.StatusNotFound {
			resp.Detail = fmt.Sprintf("%s: %v", recErr.Message, recErr.Cause)
		}
	}
	if status == http.StatusInternalServerError {
		resp.Detail = "An internal error occurred. Error: " + resp.Detail
	}

	writeJSON(w, status, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Timestamp: time.Now().UTC()})
}

// handleReconcile handles POST /api/reconcile with two CSV uploads
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.config.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, errors.BadRequest("request must be a multipart form with both CSV files").WithContext("error", err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	bank, bankHeader, err := formFile(r, bankStatementField, "bankStatement")
	if err != nil {
		writeError(w, err)
		return
	}
	defer bank.Close()

	internal, internalHeader, err := formFile(r, internalRecordsField, "internalRecords")
	if err != nil {
		writeError(w, err)
		return
	}
	defer internal.Close()

	if !isCSV(bankHeader.Filename) || !isCSV(internalHeader.Filename) {
		writeError(w, errors.MalformedInput(errors.CodeUnsupportedType, "upload", "both files must be CSVs", nil))
		return
	}

	report, err := s.reconciler.ReconcileReaders(r.Context(),
		parsers.Source{Name: bankHeader.Filename, Reader: bank},
		parsers.Source{Name: internalHeader.Filename, Reader: internal},
	)
	if err != nil {
		s.logger.WithError(err).Error("Reconciliation request failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reconcileResponse{Status: "success", ReconciliationReport: report})
}

// handleSaveReport handles POST /api/reports
func (s *Server) handleSaveReport(w http.ResponseWriter, r *http.Request) {
	var req saveReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("request body must be a JSON object with name and report"))
		return
	}
	if req.Report == nil {
		req.Report = req.ReportData
	}

	saved, err := s.repo.Save(r.Context(), req.Name, req.Report)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, saveReportResponse{
		ID:        saved.ID,
		Name:      saved.Name,
		CreatedAt: saved.CreatedAt,
	})
}

// handleListReports handles GET /api/reports?page=N
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	page, err := s.repo.List(r.Context(), parseIntParam(r, "page", 1))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// handleGetReport handles GET /api/reports/{id}
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	saved, err := s.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, saved)
}

// handleExportSaved handles GET /api/reports/{id}/export?format=csv|json
func (s *Server) handleExportSaved(w http.ResponseWriter, r *http.Request) {
	format, err := exportFormat(r)
	if err != nil {
		writeError(w, err)
		return
	}

	saved, err := s.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	s.writeExport(w, saved.Report, format)
}

// handleExportPosted handles POST /api/export?format=csv|json for a report
// that was never saved
func (s *Server) handleExportPosted(w http.ResponseWriter, r *http.Request) {
	format, err := exportFormat(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var report models.ReconciliationReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeError(w, errors.BadRequest("report data is required"))
		return
	}

	s.writeExport(w, &report, format)
}

func (s *Server) writeExport(w http.ResponseWriter, report *models.ReconciliationReport, format reporter.OutputFormat) {
	config := s.reportConfig
	config.Format = format
	config.UseColors = false
	config.ListLimit = 0

	generator, err := reporter.NewReportGenerator(&config)
	if err != nil {
		writeError(w, errors.ConfigurationError("report", format, err))
		return
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(report, &buf); err != nil {
		writeError(w, errors.InternalComputation(errors.CodeComputationFailed, "report export", err))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="reconciliation_report.%s"`, format.Extension()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// exportFormat reads the format query parameter, defaulting to JSON
func exportFormat(r *http.Request) (reporter.OutputFormat, error) {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if raw == "" {
		return reporter.FormatJSON, nil
	}

	format := reporter.OutputFormat(raw)
	if format != reporter.FormatCSV && format != reporter.FormatJSON {
		return "", errors.BadRequest(fmt.Sprintf("invalid export format %q: use csv or json", raw))
	}
	return format, nil
}

// formFile returns the first upload found under any of names
func formFile(r *http.Request, names ...string) (multipart.File, *multipart.FileHeader, error) {
	for _, name := range names {
		file, header, err := r.FormFile(name)
		if err == nil {
			return file, header, nil
		}
		if !stderrors.Is(err, http.ErrMissingFile) {
			return nil, nil, errors.BadRequest(fmt.Sprintf("could not read upload %q", name)).
				WithContext("error", err.Error())
		}
	}

	return nil, nil, errors.BadRequest(fmt.Sprintf("Both '%s' and '%s' files are required.",
		bankStatementField, internalRecordsField))
}

func isCSV(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".csv")
}

// parseIntParam parses an integer query parameter with a default value
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
