package handlers

import (
	"net/http"
	"time"

	"github.com/facegate/rollcall/internal/attendance"
	"github.com/facegate/rollcall/internal/store"
)

// AttendanceHandler handles attendance reporting endpoints.
type AttendanceHandler struct {
	store  *store.Store
	ledger *attendance.Ledger
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(st *store.Store, ledger *attendance.Ledger) *AttendanceHandler {
	return &AttendanceHandler{store: st, ledger: ledger}
}

// Summary handles GET /attendance.
func (h *AttendanceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Summarize(time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read attendance log")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Today handles GET /attendance/today.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	present := h.ledger.PresentToday(now)
	respondJSON(w, http.StatusOK, map[string]any{
		"date":    now.Format("2006-01-02"),
		"present": present,
		"count":   len(present),
	})
}

// Records handles GET /attendance/records. An optional date query
// parameter (YYYY-MM-DD) narrows the result to one day.
func (h *AttendanceHandler) Records(w http.ResponseWriter, r *http.Request) {
	records, err := h.ledger.Records()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read attendance log")
		return
	}

	if day := r.URL.Query().Get("date"); day != "" {
		filtered := make([]attendance.Record, 0, len(records))
		for _, rec := range records {
			if rec.Date == day {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// Absentees handles GET /attendance/absentees. Defaults to today;
// class, section and house query parameters narrow the roster and
// compare case- and diacritic-insensitively.
func (h *AttendanceHandler) Absentees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	day := q.Get("date")
	if day == "" {
		day = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", day); err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	filter := attendance.ReportFilter{
		Class:   q.Get("class"),
		Section: q.Get("section"),
		House:   q.Get("house"),
	}

	attendees, err := h.ledger.AttendeesOn(day)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read attendance log")
		return
	}

	report := attendance.Absentees(h.store.UsersWithMetadata(), attendees, day, filter)
	respondJSON(w, http.StatusOK, report)
}
