package checkin_api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/checkin"
	"ms-checkin/internal/codec"
	"ms-checkin/internal/ledger"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/participants"
	"ms-checkin/internal/registry"
)

type Handler struct {
	CheckinService *checkin.Service
	Registry       *registry.Service
	Ledger         *ledger.DB
	Participants   *participants.DB
	Codec          *codec.Codec
	Logger         *logger.Logger
}

type checkinRequest struct {
	Code                         string `json:"code"`
	EventID                      string `json:"event_id"`
	AccessZone                   string `json:"access_zone,omitempty"`
	StationID                    string `json:"station_id,omitempty"`
	Method                       string `json:"method,omitempty"`
	AllowMultipleEntriesOverride bool   `json:"allow_multiple_entries_override,omitempty"`
}

// Checkin handles a single redemption from a scanner or manual-entry UI.
// Policy denials come back 200 with status already/error in the body; only
// infrastructure failures produce non-2xx responses.
func (h *Handler) Checkin(w http.ResponseWriter, r *http.Request) {
	var req checkinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Code == "" || req.EventID == "" {
		http.Error(w, "code and event_id are required", http.StatusBadRequest)
		return
	}

	result, err := h.CheckinService.Redeem(r.Context(), req.Code, req.EventID, checkin.RedeemOptions{
		AccessZone:                   req.AccessZone,
		StationID:                    req.StationID,
		OperatorID:                   h.operatorID(r),
		Method:                       req.Method,
		AllowMultipleEntriesOverride: req.AllowMultipleEntriesOverride,
	})
	if errors.Is(err, checkin.ErrBusy) {
		http.Error(w, "Station busy, please retry: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		h.Logger.Error("CHECKIN", "redemption failed: "+err.Error())
		http.Error(w, "Checkin failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.Logger.LogRedemption("REDEEM", result.ParticipantID, result.Message)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

type bulkRequest struct {
	Codes      []string `json:"codes"`
	EventID    string   `json:"event_id"`
	AccessZone string   `json:"access_zone,omitempty"`
	StationID  string   `json:"station_id,omitempty"`
}

// BulkCheckin applies redemption per code, tallying outcomes. A bad code
// never fails the batch.
func (h *Handler) BulkCheckin(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Codes) == 0 || req.EventID == "" {
		http.Error(w, "codes and event_id are required", http.StatusBadRequest)
		return
	}

	result, err := h.CheckinService.BulkCheckIn(r.Context(), req.Codes, req.EventID, checkin.RedeemOptions{
		AccessZone: req.AccessZone,
		StationID:  req.StationID,
		OperatorID: h.operatorID(r),
		Method:     models.MethodBulk,
	})
	if err != nil {
		// Cancelled mid-batch: report the partial tally with 499-ish status.
		h.Logger.Warn("CHECKIN", "bulk check-in interrupted: "+err.Error())
		w.WriteHeader(http.StatusRequestTimeout)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// History returns the display-ordered (newest first) redemption log for an
// event, optionally filtered by participant.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	participantID := r.URL.Query().Get("participant_id")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := h.Ledger.QueryForDisplay(r.Context(), eventID, participantID, limit)
	if err != nil {
		http.Error(w, "Failed to fetch history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

type tokenRequest struct {
	ParticipantID string `json:"participant_id"`
}

type tokenResponse struct {
	Token   string `json:"token"`
	QRImage string `json:"qr_image,omitempty"` // base64 PNG
}

// IssueToken produces the signed scan token (and optionally the QR PNG) for
// a participant. Ticket and label rendering pipelines call this.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	participant, err := h.Participants.GetByID(r.Context(), req.ParticipantID)
	if err != nil {
		http.Error(w, "Participant not found: "+err.Error(), http.StatusNotFound)
		return
	}

	payload := codec.TokenPayload{
		ParticipantID: participant.ID,
		EventID:       participant.EventID,
		TicketTypeID:  participant.TicketTypeID,
		Code:          participant.Code,
		OrderNumber:   participant.OrderNumber,
		IssuedAt:      time.Now().UTC(),
	}

	resp := tokenResponse{Token: h.Codec.Encode(payload)}
	if r.URL.Query().Get("qr") == "true" {
		png, err := h.Codec.QRImage(payload, 256)
		if err != nil {
			http.Error(w, "Failed to render QR: "+err.Error(), http.StatusInternalServerError)
			return
		}
		resp.QRImage = base64.StdEncoding.EncodeToString(png)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// CreateParticipant adds a manual participant (walk-up registration).
func (h *Handler) CreateParticipant(w http.ResponseWriter, r *http.Request) {
	var p models.Participant
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if p.EventID == "" || p.Code == "" || p.TicketTypeID == "" {
		http.Error(w, "event_id, code and ticket_type_id are required", http.StatusBadRequest)
		return
	}

	created, err := h.Participants.Create(r.Context(), p)
	if err != nil {
		http.Error(w, "Failed to create participant: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	list, err := h.Participants.ListByEvent(r.Context(), eventID)
	if err != nil {
		http.Error(w, "Failed to fetch participants: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// operatorID prefers the OIDC-verified identity placed in context by the
// auth middleware, falling back to the bearer token's sub claim when the
// middleware is disabled.
func (h *Handler) operatorID(r *http.Request) string {
	if id := auth.OperatorID(r.Context()); id != "" {
		return id
	}
	tokenString, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		return ""
	}
	id, err := auth.ExtractOperatorIDFromJWT(tokenString)
	if err != nil {
		return ""
	}
	return id
}
