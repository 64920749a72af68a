package common

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{NotFound("product"), http.StatusNotFound, "NOT_FOUND"},
		{Validation("quantity must be positive"), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{InsufficientStock(5, 2), http.StatusConflict, "INSUFFICIENT_STOCK"},
		{DiscountNotApplicable(errors.New("minimum spend not met")), http.StatusUnprocessableEntity, "DISCOUNT_NOT_APPLICABLE"},
		{InvalidTransition("delivered", "cancelled"), http.StatusConflict, "INVALID_STATE_TRANSITION"},
		{Internal(errors.New("boom")), http.StatusInternalServerError, "INTERNAL"},
		{errors.New("raw"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		WriteError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code)
		var body struct {
			Error ErrorBody `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Equal(t, tc.code, body.Error.Code)
	}
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	require.ErrorIs(t, NotFound("cart"), ErrNotFound)
	require.ErrorIs(t, InsufficientStock(1, 0), ErrInsufficientStock)
	cause := errors.New("expired")
	err := DiscountNotApplicable(cause)
	require.ErrorIs(t, err, ErrDiscountNotApplicable)
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, Internal(nil), ErrInternalComputation)
	require.Equal(t, "expired", err.Error())
}

func TestRequireCustomer(t *testing.T) {
	var seen uuid.UUID
	h := RequireCustomer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CustomerID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CustomerHeader, id.String())
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, id, seen)
}

func TestRequireAdminKey(t *testing.T) {
	h := RequireAdminKey("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPatch, "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	req.Header.Set(AdminKeyHeader, "s3cret")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	disabled := RequireAdminKey("")(http.NotFoundHandler())
	rr = httptest.NewRecorder()
	disabled.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	h := Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		Data(w, http.StatusOK, map[string]int{"call": calls})
	}))

	newReq := func(customer uuid.UUID) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/o-1/cancel", nil)
		req.Header.Set(IdempotencyHeader, "abc")
		return req.WithContext(WithCustomerID(context.Background(), customer))
	}
	first, second := uuid.New(), uuid.New()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, newReq(first))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"data":{"call":1}}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, newReq(first))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "true", rr.Header().Get(ReplayedHeader))
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `{"data":{"call":1}}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, newReq(second))
	require.JSONEq(t, `{"data":{"call":2}}`, rr.Body.String())
	require.Equal(t, 2, calls)
}

func TestIdempotencyConflictWhileInFlight(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var h http.Handler
	var nested *httptest.ResponseRecorder
	h = Idem{R: client}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if nested == nil {
			nested = httptest.NewRecorder()
			h.ServeHTTP(nested, r)
		}
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/o-1/cancel", nil)
	req.Header.Set(IdempotencyHeader, "in-flight")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, http.StatusConflict, nested.Code)
	require.Contains(t, nested.Body.String(), "IDEMPOTENT_REPLAY")
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	status := http.StatusInternalServerError
	h := Idem{R: client}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set(IdempotencyHeader, "retry-me")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	status = http.StatusCreated
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
}

func TestPagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders?page=2&limit=500", nil)
	page, perPage := ParsePagination(req, 20)
	require.Equal(t, 2, page)
	require.Equal(t, maxPerPage, perPage)

	start, end := PageBounds(2, 10, 15)
	require.Equal(t, 10, start)
	require.Equal(t, 15, end)
	start, end = PageBounds(5, 10, 15)
	require.Equal(t, 15, start)
	require.Equal(t, 15, end)
}

func TestPaginationHugePageStaysInBounds(t *testing.T) {
	items := make([]int, 15)

	req := httptest.NewRequest(http.MethodGet, "/orders?page=9223372036854775807&limit=20", nil)
	page, perPage := ParsePagination(req, 20)
	require.Equal(t, math.MaxInt/maxPerPage, page)
	require.Equal(t, 20, perPage)
	start, end := PageBounds(page, perPage, len(items))
	require.Equal(t, 15, start)
	require.Equal(t, 15, end)
	require.Empty(t, items[start:end])

	start, end = PageBounds(4611686018427387904, 4, len(items))
	require.Equal(t, 15, start)
	require.Equal(t, 15, end)
	start, end = PageBounds(1, math.MaxInt, len(items))
	require.Equal(t, 0, start)
	require.Equal(t, 15, end)
	start, end = PageBounds(math.MaxInt, math.MaxInt, len(items))
	require.Equal(t, 15, start)
	require.Equal(t, 15, end)
	start, end = PageBounds(1, 20, 0)
	require.Equal(t, 0, start)
	require.Equal(t, 0, end)
}

func TestDecodeJSONValidates(t *testing.T) {
	type payload struct {
		ProductID string `json:"productId" validate:"required,uuid"`
		Quantity  int    `json:"quantity" validate:"gte=1"`
	}
	var p payload
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"productId":"nope","quantity":0}`))
	err := DecodeJSON(req, &p)
	require.ErrorIs(t, err, ErrValidation)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, map[string]string{"ProductID": "uuid", "Quantity": "gte"}, appErr.Details)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"productId":"`+uuid.NewString()+`","quantity":2}`))
	require.NoError(t, DecodeJSON(req, &p))
	require.Equal(t, 2, p.Quantity)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"unknown":true}`))
	require.ErrorIs(t, DecodeJSON(req, &p), ErrValidation)
}

func TestDataEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	Data(rr, http.StatusCreated, map[string]int{"subtotal": 150000})
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `{"data":{"subtotal":150000}}`, rr.Body.String())
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/prices/x?quantity=12&bad=twelve", nil)
	require.Equal(t, 12, QueryInt(req, "quantity", 1))
	require.Equal(t, 1, QueryInt(req, "bad", 1))
	require.Equal(t, 7, QueryInt(req, "missing", 7))
}
