package cart_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-commerce/internal/cart"
	"github.com/noah-isme/toko-commerce/internal/common"
)

type cartEnvelope struct {
	Data struct {
		Cart     cart.View `json:"cart"`
		Currency string    `json:"currency"`
	} `json:"data"`
}

func newCartRouter(f fixture) http.Handler {
	h := &cart.Handler{Svc: f.svc, Currency: "IDR"}
	r := chi.NewRouter()
	r.Route("/cart", func(r chi.Router) {
		r.Use(common.RequireCustomer)
		h.Routes(r)
	})
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, customer uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if customer != uuid.Nil {
		req.Header.Set(common.CustomerHeader, customer.String())
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCartHandlersFlow(t *testing.T) {
	f := newFixture(t)
	router := newCartRouter(f)
	p := f.product(75_000, 10)

	rr := doJSON(t, router, http.MethodPost, "/cart/lines", f.customer, map[string]any{"productId": p.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var env cartEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Len(t, env.Data.Cart.Lines, 1)
	require.Equal(t, int64(150_000), env.Data.Cart.Totals.Subtotal)
	require.Equal(t, "IDR", env.Data.Currency)
	lineID := env.Data.Cart.Lines[0].ID

	rr = doJSON(t, router, http.MethodPatch, "/cart/lines/"+lineID.String(), f.customer, map[string]any{"quantity": 3})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, int64(225_000), env.Data.Cart.Totals.Subtotal)

	rr = doJSON(t, router, http.MethodGet, "/cart?lineIds="+lineID.String(), f.customer, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodDelete, "/cart/lines/"+lineID.String(), f.customer, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Empty(t, env.Data.Cart.Lines)
}

func TestCartHandlersErrors(t *testing.T) {
	f := newFixture(t)
	router := newCartRouter(f)
	p := f.product(75_000, 1)

	rr := doJSON(t, router, http.MethodGet, "/cart", uuid.Nil, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/cart/lines", f.customer, map[string]any{"productId": p.ID, "quantity": 0})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/cart/lines", f.customer, map[string]any{"productId": p.ID, "quantity": 2})
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, router, http.MethodPatch, "/cart/lines/not-a-uuid", f.customer, map[string]any{"quantity": 1})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/cart/discount", f.customer, map[string]any{"code": "NOPE", "lineIds": []string{uuid.NewString()}})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = doJSON(t, router, http.MethodPut, "/cart/address", f.customer, map[string]any{"addressId": uuid.NewString()})
	require.Equal(t, http.StatusNotFound, rr.Code)
}
