package order

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-commerce/internal/common"
)

// Handler exposes checkout and the customer's order history.
type Handler struct {
	Svc *Service
}

type checkoutPayload struct {
	LineIDs      []uuid.UUID `json:"lineIds"`
	DiscountCode *string     `json:"discountCode" validate:"omitempty,max=64"`
	AddressID    *uuid.UUID  `json:"addressId"`
}

// Checkout places an order from the caller's cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	var payload checkoutPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	in := CheckoutInput{
		LineIDs:      payload.LineIDs,
		DiscountCode: payload.DiscountCode,
		AddressID:    payload.AddressID,
	}
	if key := strings.TrimSpace(r.Header.Get(common.IdempotencyHeader)); key != "" {
		in.IdempotencyKey = &key
	}
	view, err := h.Svc.Checkout(r.Context(), customerID, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, view)
}

// List returns the caller's orders, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	views, total, err := h.Svc.List(r.Context(), customerID, page, perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": views,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: total,
		},
	})
}

// Get returns one order with its frozen lines.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	orderID, ok := orderParam(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Get(r.Context(), customerID, orderID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// Cancel cancels one of the caller's orders.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	orderID, ok := orderParam(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Cancel(r.Context(), customerID, orderID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

func (h *Handler) customer(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return uuid.Nil, false
	}
	id, ok := common.CustomerID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "customer identity required", nil)
		return uuid.Nil, false
	}
	return id, true
}

func orderParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "orderId")
	if raw == "" {
		raw = chi.URLParam(r, "id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		common.WriteError(w, common.Validation("invalid order id"))
		return uuid.Nil, false
	}
	return id, true
}
