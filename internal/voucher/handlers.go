package voucher

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-commerce/internal/common"
)

// Handler exposes a read-only discount code preview endpoint.
type Handler struct {
	Q   Querier
	Svc *Service
}

type previewRequest struct {
	Code     string               `json:"code" validate:"required,max=64"`
	Shipping int64                `json:"shipping" validate:"gte=0"`
	Items    []previewRequestItem `json:"items" validate:"required,min=1,dive"`
}

type previewRequestItem struct {
	ProductID uuid.UUID  `json:"productId" validate:"required"`
	VariantID *uuid.UUID `json:"variantId"`
	Subtotal  int64      `json:"subtotal" validate:"gt=0"`
}

type previewResponse struct {
	Code           string `json:"code"`
	Discount       int64  `json:"discount"`
	EligibleAmount int64  `json:"eligibleAmount"`
}

// Preview returns the simulated discount for a code without redeeming it.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount service not configured", nil)
		return
	}
	var req previewRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	items := make([]Item, 0, len(req.Items))
	for i, it := range req.Items {
		items = append(items, Item{LineID: syntheticLineID(i), ProductID: it.ProductID, VariantID: it.VariantID, Subtotal: it.Subtotal})
	}
	var customerID *uuid.UUID
	if id, ok := common.CustomerID(r.Context()); ok {
		customerID = &id
	}
	eval, err := h.Svc.Apply(r.Context(), h.Q, req.Code, customerID, items, req.Shipping)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, previewResponse{
		Code:           eval.Code,
		Discount:       eval.Discount,
		EligibleAmount: eval.Eligible,
	})
}

func syntheticLineID(i int) uuid.UUID {
	var id uuid.UUID
	id[15] = byte(i)
	id[14] = byte(i >> 8)
	return id
}
