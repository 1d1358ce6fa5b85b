package control

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/colosseo-ops/acquirer/server/api"
	"github.com/colosseo-ops/acquirer/x/lifecycle"
	"github.com/colosseo-ops/acquirer/x/registry"
	"github.com/colosseo-ops/acquirer/x/store"
)

// defaultPaymentOptions are the rails offered to the claim winner.
func defaultPaymentOptions() []PaymentOption {
	return []PaymentOption{
		{Kind: lifecycle.PaymentUniCreditCard, DisplayName: "UniCredit Card", Requires3DS: true},
		{Kind: lifecycle.PaymentPayPal, DisplayName: "PayPal", Requires3DS: false},
	}
}

// handleInitiateAcquisition races for the event's cart. Exactly one caller
// across all workers wins; losing is a structured negative result, not an
// error.
func (s *Server) handleInitiateAcquisition(w http.ResponseWriter, r *http.Request) {
	var req AcquisitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, r, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}
	if req.EventID == "" {
		api.WriteError(w, r, http.StatusBadRequest, "bad_request", "event_id is required", nil)
		return
	}

	cartID := "cart-" + uuid.NewString()
	won, err := s.store.TryClaim(r.Context(), req.EventID, cartID, s.cfg.ClaimTTL)
	if err != nil {
		acquisitionsTotal.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Str("event_id", req.EventID).Msg("claim attempt failed")
		api.WriteError(w, r, http.StatusInternalServerError, "store_error", "coordination store unavailable", nil)
		return
	}

	if !won {
		acquisitionsTotal.WithLabelValues("lost").Inc()
		api.WriteJSON(w, http.StatusOK, AcquisitionResponse{
			Success:      false,
			ErrorMessage: "Already claimed",
		})
		return
	}

	acquisitionsTotal.WithLabelValues("won").Inc()
	expires := time.Now().UTC().Add(s.cfg.ClaimTTL)
	s.log.Info().
		Str("event_id", req.EventID).
		Str("cart_id", cartID).
		Time("hold_expires", expires).
		Msg("cart claimed")

	api.WriteJSON(w, http.StatusOK, AcquisitionResponse{
		Success:       true,
		CartID:        cartID,
		HoldExpiresMS: expires.UnixMilli(),
		PaymentOpts:   defaultPaymentOptions(),
	})
}

// handleGetCartStatus reflects the true claim record: the response is
// derived from the store, never from what the caller believes it holds.
func (s *Server) handleGetCartStatus(w http.ResponseWriter, r *http.Request) {
	cartID := mux.Vars(r)["cartID"]
	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		api.WriteError(w, r, http.StatusBadRequest, "bad_request", "event_id query parameter is required", nil)
		return
	}

	resp := CartStatusResponse{CartID: cartID}

	holder, err := s.store.ClaimHolder(r.Context(), eventID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		resp.State = CartReleased
	case err != nil:
		s.log.Error().Err(err).Str("event_id", eventID).Msg("claim lookup failed")
		api.WriteError(w, r, http.StatusInternalServerError, "store_error", "coordination store unavailable", nil)
		return
	case holder == cartID:
		resp.State = CartActive
	default:
		resp.State = CartLost
	}

	if targetID := r.URL.Query().Get("target_id"); targetID != "" {
		if state, lerr := s.store.LoadState(r.Context(), targetID); lerr == nil {
			resp.Phase = state.Phase()
		}
	}

	api.WriteJSON(w, http.StatusOK, resp)
}

// handleCompletePayment drives Holding → Paying → Confirmed (or a
// non-retryable decline) and gives the claim back either way.
func (s *Server) handleCompletePayment(w http.ResponseWriter, r *http.Request) {
	cartID := mux.Vars(r)["cartID"]

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, r, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}
	if req.EventID == "" || req.TargetID == "" || req.PaymentToken == "" {
		api.WriteError(w, r, http.StatusBadRequest, "bad_request", "event_id, target_id and payment_token are required", nil)
		return
	}

	current, err := s.registry.Get(r.Context(), req.TargetID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			api.WriteError(w, r, http.StatusNotFound, "not_found", "no lifecycle for target", nil)
			return
		}
		s.log.Error().Err(err).Str("target_id", req.TargetID).Msg("state lookup failed")
		api.WriteError(w, r, http.StatusInternalServerError, "store_error", "coordination store unavailable", nil)
		return
	}

	// Captured before the terminal transition discards them.
	ticketType, _ := lifecycle.TicketTypeOf(current)
	targetDate, _ := lifecycle.TargetDateOf(current)

	now := time.Now().UTC()
	paying := lifecycle.Paying{
		StartedAt:    now,
		PaymentToken: req.PaymentToken,
		Method:       req.Method,
		CartID:       cartID,
	}
	if _, terr := s.registry.Update(r.Context(), req.TargetID, paying); terr != nil {
		transitionsTotal.WithLabelValues("rejected").Inc()
		api.WriteError(w, r, http.StatusConflict, "invalid_transition", terr.Error(), nil)
		return
	}
	transitionsTotal.WithLabelValues("accepted").Inc()

	code, chargeErr := s.processor.Charge(r.Context(), cartID, req.PaymentToken, req.Method)

	var final lifecycle.State
	resp := PaymentResponse{TimestampMS: now.UnixMilli()}
	if chargeErr != nil {
		final = lifecycle.Failed{
			FailedAt:      now,
			Reason:        lifecycle.ReasonPaymentDeclined,
			RetryEligible: lifecycle.DefaultRetryEligible(lifecycle.ReasonPaymentDeclined),
		}
		resp.Success = false
		resp.ErrorMessage = "payment declined"
		s.log.Warn().Err(chargeErr).Str("target_id", req.TargetID).Msg("charge declined")
	} else {
		final = lifecycle.Confirmed{
			ConfirmedAt:      now,
			ConfirmationCode: code,
			Tickets: []lifecycle.TicketDetail{{
				TicketID:   uuid.NewString(),
				Date:       targetDate,
				TicketType: ticketType,
				PriceTier:  lifecycle.TierIntero,
			}},
		}
		resp.Success = true
		resp.ConfirmationCode = code
	}

	settled, terr := s.registry.Update(r.Context(), req.TargetID, final)
	if terr != nil {
		transitionsTotal.WithLabelValues("rejected").Inc()
		api.WriteError(w, r, http.StatusConflict, "invalid_transition", terr.Error(), nil)
		return
	}
	transitionsTotal.WithLabelValues("accepted").Inc()
	resp.Phase = settled.Phase()

	// The hold is spent either way; releasing with the cart token cannot
	// disturb a claim this worker no longer owns.
	if _, rerr := s.store.Release(r.Context(), req.EventID, cartID); rerr != nil {
		s.log.Warn().Err(rerr).Str("event_id", req.EventID).Msg("claim release failed")
	}

	api.WriteJSON(w, http.StatusOK, resp)
}

// handleReleaseCart gives a claim back voluntarily. A wrong or expired
// token leaves the record untouched.
func (s *Server) handleReleaseCart(w http.ResponseWriter, r *http.Request) {
	cartID := mux.Vars(r)["cartID"]

	var req ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, r, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}
	if req.EventID == "" {
		api.WriteError(w, r, http.StatusBadRequest, "bad_request", "event_id is required", nil)
		return
	}

	removed, err := s.store.Release(r.Context(), req.EventID, cartID)
	if err != nil {
		s.log.Error().Err(err).Str("event_id", req.EventID).Msg("claim release failed")
		api.WriteError(w, r, http.StatusInternalServerError, "store_error", "coordination store unavailable", nil)
		return
	}

	if removed {
		alert := store.Alert{
			Level:     store.AlertInfo,
			Timestamp: time.Now().UTC(),
			Target:    req.EventID,
			Status:    "cart_released",
			Metadata:  map[string]any{"reason": req.Reason},
		}
		if aerr := s.store.QueueAlert(r.Context(), alert); aerr != nil {
			s.log.Warn().Err(aerr).Msg("alert enqueue failed")
		}
		s.log.Info().
			Str("event_id", req.EventID).
			Str("cart_id", cartID).
			Str("reason", req.Reason).
			Msg("cart released")
	}

	api.WriteJSON(w, http.StatusOK, ReleaseResponse{Success: removed})
}
