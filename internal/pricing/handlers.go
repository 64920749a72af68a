package pricing

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-commerce/internal/common"
)

// Handler exposes price resolution over HTTP.
type Handler struct {
	Resolver *Resolver
	Currency string
}

// Quote resolves the unit price of a product or variant for the caller.
// GET /prices/{productId}?variantId=&quantity=
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Resolver == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "price resolver not configured", nil)
		return
	}
	productID, err := uuid.Parse(chi.URLParam(r, "productId"))
	if err != nil {
		common.WriteError(w, common.Validation("invalid product id"))
		return
	}
	req := Request{
		ProductID: productID,
		Quantity:  common.QueryInt(r, "quantity", 1),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("variantId")); raw != "" {
		variantID, err := uuid.Parse(raw)
		if err != nil {
			common.WriteError(w, common.Validation("invalid variant id"))
			return
		}
		req.VariantID = &variantID
	}
	if customerID, ok := common.CustomerID(r.Context()); ok {
		req.CustomerID = &customerID
	}
	res, err := h.Resolver.Resolve(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	data := map[string]any{
		"productId":      res.Item.ProductID,
		"variantId":      res.Item.VariantID,
		"quantity":       res.Quantity,
		"originalPrice":  res.OriginalPrice,
		"finalPrice":     res.FinalPrice,
		"discountAmount": res.DiscountAmount,
		"appliedRule":    res.AppliedRule,
		"tier":           res.Tier(),
		"currency":       h.Currency,
	}
	common.Data(w, http.StatusOK, data)
}
