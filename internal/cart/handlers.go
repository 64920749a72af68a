package cart

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-commerce/internal/common"
)

// Handler wires cart services to HTTP. Every route expects the customer to be
// present in the request context.
type Handler struct {
	Svc      *Service
	Currency string
}

type addLinePayload struct {
	ProductID uuid.UUID  `json:"productId" validate:"required"`
	VariantID *uuid.UUID `json:"variantId"`
	Quantity  int        `json:"quantity" validate:"gt=0"`
}

type updateLinePayload struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

type addressPayload struct {
	AddressID uuid.UUID `json:"addressId" validate:"required"`
}

type discountPayload struct {
	Code    string      `json:"code" validate:"required,max=64"`
	LineIDs []uuid.UUID `json:"lineIds" validate:"required,min=1"`
}

// Routes mounts the cart endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Get)
	r.Delete("/", h.Clear)
	r.Post("/lines", h.AddLine)
	r.Patch("/lines/{lineId}", h.UpdateLine)
	r.Delete("/lines/{lineId}", h.RemoveLine)
	r.Put("/address", h.SetAddress)
	r.Post("/discount", h.ApplyDiscount)
	r.Delete("/discount", h.RemoveDiscount)
}

// Get returns the cart with freshly computed totals.
// GET /cart?lineIds=a,b&applyDiscount=false
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	opts := TotalsOptions{ApplyDiscount: true}
	if raw := strings.TrimSpace(r.URL.Query().Get("applyDiscount")); raw == "false" || raw == "0" {
		opts.ApplyDiscount = false
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("lineIds")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := uuid.Parse(strings.TrimSpace(part))
			if err != nil {
				common.WriteError(w, common.Validation("invalid line id"))
				return
			}
			opts.LineIDs = append(opts.LineIDs, id)
		}
	}
	view, err := h.Svc.Get(r.Context(), customerID, opts)
	h.respond(w, view, err)
}

// AddLine adds or increments a cart line.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	var payload addLinePayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.AddLine(r.Context(), customerID, AddLineInput{
		ProductID: payload.ProductID,
		VariantID: payload.VariantID,
		Quantity:  payload.Quantity,
	})
	h.respond(w, view, err)
}

// UpdateLine sets the quantity of a line. Zero removes it.
func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	lineID, ok := lineParam(w, r)
	if !ok {
		return
	}
	var payload updateLinePayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.UpdateLine(r.Context(), customerID, lineID, payload.Quantity)
	h.respond(w, view, err)
}

// RemoveLine deletes a cart line.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	lineID, ok := lineParam(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.RemoveLine(r.Context(), customerID, lineID)
	h.respond(w, view, err)
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Clear(r.Context(), customerID)
	h.respond(w, view, err)
}

// SetAddress selects the shipping address.
func (h *Handler) SetAddress(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	var payload addressPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.SetShippingAddress(r.Context(), customerID, payload.AddressID)
	h.respond(w, view, err)
}

// ApplyDiscount applies a discount code to the selected lines.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	var payload discountPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.ApplyDiscountCode(r.Context(), customerID, payload.Code, payload.LineIDs)
	h.respond(w, view, err)
}

// RemoveDiscount removes the applied discount code.
func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customer(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.RemoveDiscountCode(r.Context(), customerID)
	h.respond(w, view, err)
}

func (h *Handler) customer(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return uuid.Nil, false
	}
	id, ok := common.CustomerID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "customer identity required", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respond(w http.ResponseWriter, view View, err error) {
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{
		"cart":     view,
		"currency": h.Currency,
	})
}

func lineParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "lineId"))
	if err != nil {
		common.WriteError(w, common.Validation("invalid line id"))
		return uuid.Nil, false
	}
	return id, true
}
