package web

import (
	"net/http"
	"time"
)

func (h *Handler) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Reports.GetDashboardSummary(r.Context(), time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

func (h *Handler) receivablesAging(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateOrToday(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	report, err := h.svc.Reports.GetReceivablesAging(r.Context(), asOf)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}

func (h *Handler) projectFinancials(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	report, err := h.svc.Reports.GetProjectFinancials(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}

// payrollMonth reports the month given as ?month=YYYY-MM, defaulting to the
// current month.
func (h *Handler) payrollMonth(w http.ResponseWriter, r *http.Request) {
	month := time.Now()
	if m := r.URL.Query().Get("month"); m != "" {
		parsed, err := time.Parse("2006-01", m)
		if err != nil {
			writeError(w, r, "invalid month, want YYYY-MM", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		month = parsed
	}
	lines, err := h.svc.Reports.GetPayrollMonth(r.Context(), month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, lines)
}

func (h *Handler) exportTransactionsCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := transactionFilterFromQuery(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	if err := h.svc.Reports.ExportTransactionsCSV(r.Context(), w, filter); err != nil {
		writeServiceError(w, r, err)
	}
}
