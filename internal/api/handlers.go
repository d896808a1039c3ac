/**
 * @description
 * HTTP handlers for the payments service.
 */
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bookline/payments-service/internal/app"
)

// Handler holds the application service that handlers interact with.
type Handler struct {
	service *app.Service
	logger  *slog.Logger
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service *app.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// handleRunPayments triggers a full payment processing run. A GET with
// action=health routes to the read-only health report instead. The response
// is always 200 with the result body; partial step failures are reported in
// the body, not the status code.
func (h *Handler) handleRunPayments(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("action") == "health" {
		respondWithJSON(w, http.StatusOK, h.service.CheckPaymentSystemHealth(r.Context()))
		return
	}

	result := h.service.RunScheduledPaymentProcessing(r.Context())
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHealthReport(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.service.CheckPaymentSystemHealth(r.Context()))
}

func (h *Handler) handleProcessCharge(w http.ResponseWriter, r *http.Request) {
	chargeID := chi.URLParam(r, "id")
	if chargeID == "" {
		http.Error(w, "Charge ID is required", http.StatusBadRequest)
		return
	}

	charge, err := h.service.ChargeFeeCharge(r.Context(), chargeID)
	if err != nil {
		h.logger.Error("failed to process charge", "charge_id", chargeID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, charge)
}

func (h *Handler) handleReclaimStuckCharges(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.ReclaimStuckCharges(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Error("failed to reclaim stuck charges", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{"reclaimed": count})
}

// handleGetEarnings returns the authenticated professional's earnings for the
// cycle given by cycle_start (RFC 3339; defaults to the current cycle).
func (h *Handler) handleGetEarnings(w http.ResponseWriter, r *http.Request) {
	subject, ok := SubjectFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	professionalID, err := h.service.ProfessionalIDForSubject(r.Context(), subject)
	if err != nil {
		h.logger.Error("failed to resolve professional", "subject", subject, "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	cycleStart := time.Now().UTC()
	if raw := r.URL.Query().Get("cycle_start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "cycle_start must be RFC 3339", http.StatusBadRequest)
			return
		}
		cycleStart = parsed
	}

	earnings, err := h.service.EarningsForCycle(r.Context(), cycleStart, professionalID)
	if err != nil {
		h.logger.Error("failed to list earnings", "professional_id", professionalID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, earnings)
}

func (h *Handler) handleListFeeCharges(w http.ResponseWriter, r *http.Request) {
	subject, ok := SubjectFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	professionalID, err := h.service.ProfessionalIDForSubject(r.Context(), subject)
	if err != nil {
		h.logger.Error("failed to resolve professional", "subject", subject, "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	charges, err := h.service.ListFeeCharges(r.Context(), professionalID)
	if err != nil {
		h.logger.Error("failed to list fee charges", "professional_id", professionalID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, charges)
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
