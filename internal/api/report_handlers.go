package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/openforest/fieldcoord/internal/report"
)

// ReportHandlers holds dependencies for expedition report handlers.
type ReportHandlers struct {
	generator *report.Generator
}

// NewReportHandlers creates a new ReportHandlers instance.
func NewReportHandlers(generator *report.Generator) *ReportHandlers {
	return &ReportHandlers{generator: generator}
}

// GetReport handles GET /brigades/{id}/report, streaming the expedition
// workbook as an xlsx attachment. The workbook is buffered first so a
// generation failure still produces a clean error response.
func (h *ReportHandlers) GetReport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	name, err := h.generator.Generate(r.Context(), r.PathValue("id"), &buf)
	if err != nil {
		WriteFault(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
