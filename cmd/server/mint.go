package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pythonsolidity/mindmint/internal/idempotency"
	"github.com/pythonsolidity/mindmint/internal/mint"
	"github.com/pythonsolidity/mindmint/internal/store"
	"github.com/pythonsolidity/mindmint/pkg/httpx"
)

const mintEndpoint = "POST /mint"

type handlers struct {
	submitter *mint.Submitter
	admission *mint.Admission
	supply    mint.SupplyReader
	store     *store.Store      // nil when no DATABASE_URL is configured
	idem      idempotency.Store // likewise
}

func (h *handlers) handleMint(w http.ResponseWriter, r *http.Request) {
	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	status, body, replayed, err := idempotency.Replay(r.Context(), h.idem, idemKey, mintEndpoint)
	if err == nil && replayed {
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}

	var p mint.MintPayload
	if err := httpx.ReadJSON(r, &p); err != nil {
		httpx.WriteFailure(w, 400, "invalid JSON body: "+err.Error())
		return
	}

	requestID := httpx.NewRequestID()
	req, err := mint.ValidateRequest(requestID, p)
	if err != nil {
		kind := mint.Classify(err)
		h.respond(r, w, idemKey, kind.HTTPStatus(), map[string]any{
			"success": false, "error": err.Error(), "request_id": requestID,
		})
		return
	}

	if h.store != nil {
		_ = h.store.CreateAttempt(r.Context(), requestID, req.Amount.String(), req.Recipient.Hex(), string(mint.StateValidated))
	}

	out := h.submitter.Issue(r.Context(), req)
	if !out.Success {
		h.respond(r, w, idemKey, out.ErrorKind.HTTPStatus(), map[string]any{
			"success": false, "error": out.Message, "request_id": requestID,
		})
		return
	}
	h.respond(r, w, idemKey, 200, map[string]any{
		"success":    true,
		"txHash":     out.TxHash,
		"gasUsed":    out.GasUsed,
		"request_id": requestID,
	})
}

// respond writes the response and records it for idempotent replay.
func (h *handlers) respond(r *http.Request, w http.ResponseWriter, idemKey string, status int, body map[string]any) {
	if raw, err := json.Marshal(body); err == nil {
		_ = idempotency.Save(r.Context(), h.idem, idemKey, mintEndpoint, status, raw)
	}
	httpx.WriteJSON(w, status, body)
}

func (h *handlers) handleSupply(w http.ResponseWriter, r *http.Request) {
	sup, err := h.supply.ReadSupply(r.Context())
	if err != nil {
		httpx.WriteFailure(w, 500, "ledger unavailable")
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id":  httpx.NewRequestID(),
		"totalIssued": sup.TotalIssued.String(),
		"maxSupply":   sup.MaxSupply.String(),
		"remaining":   sup.Remaining().String(),
		"outstanding": h.admission.Outstanding().String(),
	})
}

func (h *handlers) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		httpx.WriteError(w, 404, "NOT_FOUND", "attempt store not configured", nil)
		return
	}
	requestID := chi.URLParam(r, "request_id")
	a, err := h.store.GetAttempt(r.Context(), requestID)
	if err != nil {
		httpx.WriteError(w, 404, "NOT_FOUND", "attempt not found", nil)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "attempt": a})
}
