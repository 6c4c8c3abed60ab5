package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/nugget/concierge/internal/booking"
	"github.com/nugget/concierge/internal/session"
	"github.com/nugget/concierge/internal/usage"
)

const maxUsageHours = 24 * 31

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil {
		s.errorResponse(w, http.StatusNotFound, "session store not configured")
		return
	}
	key := session.Key(s.businessID(r), r.PathValue("user"))
	sess, err := s.deps.Sessions.Get(r.Context(), key)
	if err != nil {
		s.logger.Error("session lookup failed", "session", key, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "session lookup failed")
		return
	}
	if sess == nil {
		s.errorResponse(w, http.StatusNotFound, "no session for "+key)
		return
	}
	writeJSON(w, sess, s.logger)
}

// usageReport is the body of GET /v1/usage.
type usageReport struct {
	Hours     int                       `json:"hours"`
	Start     time.Time                 `json:"start"`
	End       time.Time                 `json:"end"`
	Total     *usage.Summary            `json:"total"`
	ByPurpose map[string]*usage.Summary `json:"by_purpose"`
	ByModel   map[string]*usage.Summary `json:"by_model"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Usage == nil {
		s.errorResponse(w, http.StatusNotFound, "usage ledger not configured")
		return
	}
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = min(n, maxUsageHours)
	}

	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)
	ctx := r.Context()

	total, err := s.deps.Usage.Summary(ctx, start, end)
	if err != nil {
		s.usageError(w, err)
		return
	}
	byPurpose, err := s.deps.Usage.SummaryByPurpose(ctx, start, end)
	if err != nil {
		s.usageError(w, err)
		return
	}
	byModel, err := s.deps.Usage.SummaryByModel(ctx, start, end)
	if err != nil {
		s.usageError(w, err)
		return
	}

	writeJSON(w, usageReport{
		Hours:     hours,
		Start:     start.UTC(),
		End:       end.UTC(),
		Total:     total,
		ByPurpose: byPurpose,
		ByModel:   byModel,
	}, s.logger)
}

func (s *Server) usageError(w http.ResponseWriter, err error) {
	s.logger.Error("usage query failed", "error", err)
	s.errorResponse(w, http.StatusInternalServerError, "usage query failed")
}

// CheckInPayload is the text encoded in an appointment's QR code.
func CheckInPayload(appointmentID string) string {
	return "concierge:checkin:" + appointmentID
}

func (s *Server) handleAppointmentQR(w http.ResponseWriter, r *http.Request) {
	if s.deps.Appointments == nil {
		s.errorResponse(w, http.StatusNotFound, "appointments not configured")
		return
	}
	id := r.PathValue("id")
	appt, err := s.deps.Appointments.Get(r.Context(), id)
	if errors.Is(err, booking.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "appointment not found")
		return
	}
	if err != nil {
		s.logger.Error("appointment lookup failed", "id", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "appointment lookup failed")
		return
	}
	if appt.Status != booking.StatusBooked {
		s.errorResponse(w, http.StatusGone, "appointment is "+appt.Status)
		return
	}

	size := 256
	if v, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && v >= 64 && v <= 1024 {
		size = v
	}
	png, err := qrcode.Encode(CheckInPayload(appt.ID), qrcode.Medium, size)
	if err != nil {
		s.logger.Error("qr encode failed", "id", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "qr encode failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=300")
	if _, err := w.Write(png); err != nil {
		s.logger.Debug("failed to write qr response", "error", err)
	}
}
