package httpapi

import (
	"net/http"

	"pkt.systems/countd/api"
	"pkt.systems/countd/internal/store"
)

func (h *Handler) handleIncrement(w http.ResponseWriter, r *http.Request) error {
	if err := requireMethod(r, w, http.MethodPost); err != nil {
		return err
	}
	claims, err := h.claims(r)
	if err != nil {
		return err
	}
	count, err := h.svc.Increment(r.Context(), claims.UserID, claims.Email)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, api.IncrementResponse{
		UserID:     claims.UserID,
		Increments: count,
	})
	return nil
}

func (h *Handler) handleCounter(w http.ResponseWriter, r *http.Request) error {
	if err := requireMethod(r, w, http.MethodGet); err != nil {
		return err
	}
	claims, err := h.claims(r)
	if err != nil {
		return err
	}
	record, err := h.svc.Get(r.Context(), claims.UserID)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, counterResponse(record))
	return nil
}

func (h *Handler) handleCounters(w http.ResponseWriter, r *http.Request) error {
	if err := requireMethod(r, w, http.MethodGet); err != nil {
		return err
	}
	records, err := h.svc.List(r.Context())
	if err != nil {
		return err
	}
	resp := api.CountersResponse{Counters: make([]api.CounterResponse, 0, len(records))}
	for _, record := range records {
		resp.Counters = append(resp.Counters, counterResponse(record))
	}
	h.writeJSON(w, http.StatusOK, resp)
	return nil
}

func (h *Handler) handleTop(w http.ResponseWriter, r *http.Request) error {
	if err := requireMethod(r, w, http.MethodGet); err != nil {
		return err
	}
	record, err := h.svc.Top(r.Context())
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, api.TopResponse{
		UserID:     record.UserID,
		Increments: record.Counter,
	})
	return nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) error {
	h.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
	return nil
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) error {
	if h.ready != nil && !h.ready() {
		return httpError{
			Status: http.StatusServiceUnavailable,
			Code:   "not_ready",
			Detail: "server is starting",
		}
	}
	h.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ready"})
	return nil
}

func counterResponse(record store.Record) api.CounterResponse {
	return api.CounterResponse{
		UserID:     record.UserID,
		Email:      record.Email,
		Increments: record.Counter,
	}
}
