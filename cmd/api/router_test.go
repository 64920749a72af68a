package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-commerce/internal/app"
	"github.com/noah-isme/toko-commerce/internal/common"
	"github.com/noah-isme/toko-commerce/internal/config"
	"github.com/noah-isme/toko-commerce/internal/db"
	"github.com/noah-isme/toko-commerce/internal/db/dbtest"
	"github.com/noah-isme/toko-commerce/internal/events"
)

type testServer struct {
	handler  http.Handler
	store    *dbtest.Store
	customer uuid.UUID
}

func newTestServer(t *testing.T, perMinute int) testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		AdminKey:           "secret",
		CurrencyCode:       "IDR",
		CartLockTTL:        time.Second,
		IdempotencyTTL:     time.Minute,
		RateLimitPerMinute: perMinute,
	}
	store := dbtest.New()
	limiter, err := app.NewRateLimiter("ulule", rdb)
	require.NoError(t, err)
	services := app.NewServices(cfg, store, rdb, &events.Bus{Store: store}, zerolog.Nop())
	handler := newRouter(routerDeps{
		Config:   cfg,
		Logger:   zerolog.Nop(),
		Services: services,
		Querier:  store,
		Redis:    rdb,
		Limiter:  limiter,
	})
	customer := store.AddCustomer(db.Customer{Name: "Rina"})
	return testServer{handler: handler, store: store, customer: customer.ID}
}

func (s testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealth(t *testing.T) {
	s := newTestServer(t, 100)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/live", nil, nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/ready", nil, nil).Code)
	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/metrics", nil, nil).Code)
}

func TestRouterPriceQuoteIsPublic(t *testing.T) {
	s := newTestServer(t, 100)
	p := s.store.AddProduct(db.Product{Name: "Teh", SKU: "TEH-1", OriginalPrice: 25_000, Stock: 3})
	rr := s.do(t, http.MethodGet, "/api/v1/prices/"+p.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), "25000")
}

func TestRouterCartMutationsAreRateLimited(t *testing.T) {
	s := newTestServer(t, 2)
	p := s.store.AddProduct(db.Product{Name: "Teh", SKU: "TEH-1", OriginalPrice: 25_000, Stock: 10})
	headers := map[string]string{common.CustomerHeader: s.customer.String()}
	add := map[string]any{"productId": p.ID, "quantity": 1}

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/lines", add, headers).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/lines", add, headers).Code)
	rr := s.do(t, http.MethodPost, "/api/v1/cart/lines", add, headers)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Contains(t, rr.Body.String(), "RATE_LIMITED")

	rr = s.do(t, http.MethodGet, "/api/v1/cart", nil, headers)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterRequiresIdentity(t *testing.T) {
	s := newTestServer(t, 100)
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/cart", nil, nil).Code)
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/orders", nil, nil).Code)
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/v1/checkout", map[string]any{}, nil).Code)

	path := "/api/v1/admin/orders/" + uuid.NewString() + "/status"
	require.Equal(t, http.StatusForbidden, s.do(t, http.MethodPatch, path, map[string]any{"status": "confirmed"}, nil).Code)
	rr := s.do(t, http.MethodPatch, path, map[string]any{"status": "confirmed"}, map[string]string{common.AdminKeyHeader: "secret"})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterCheckoutFlow(t *testing.T) {
	s := newTestServer(t, 100)
	p := s.store.AddProduct(db.Product{Name: "Teh", SKU: "TEH-1", OriginalPrice: 25_000, Stock: 10})
	addr := s.store.AddAddress(db.Address{CustomerID: s.customer, ReceiverName: "Rina", Region: "Bali", City: "Denpasar"})
	headers := map[string]string{common.CustomerHeader: s.customer.String()}

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/lines", map[string]any{"productId": p.ID, "quantity": 2}, headers).Code)

	headers[common.IdempotencyHeader] = "checkout-1"
	first := s.do(t, http.MethodPost, "/api/v1/checkout", map[string]any{"addressId": addr.ID}, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := s.do(t, http.MethodPost, "/api/v1/checkout", map[string]any{"addressId": addr.ID}, headers)
	require.Less(t, second.Code, 300, second.Body.String())
	require.Len(t, s.store.Orders(), 1)

	delete(headers, common.IdempotencyHeader)
	rr := s.do(t, http.MethodGet, "/api/v1/orders", nil, headers)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "1", rr.Header().Get("X-Total-Count"))

	var created struct {
		Data struct {
			ID uuid.UUID `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &created))
	cancelPath := "/api/v1/orders/" + created.Data.ID.String() + "/cancel"

	headers[common.IdempotencyHeader] = "cancel-1"
	cancelled := s.do(t, http.MethodPost, cancelPath, nil, headers)
	require.Equal(t, http.StatusOK, cancelled.Code, cancelled.Body.String())
	replayed := s.do(t, http.MethodPost, cancelPath, nil, headers)
	require.Equal(t, http.StatusOK, replayed.Code)
	require.Equal(t, "true", replayed.Header().Get(common.ReplayedHeader))
	require.JSONEq(t, cancelled.Body.String(), replayed.Body.String())

	delete(headers, common.IdempotencyHeader)
	rr = s.do(t, http.MethodPost, cancelPath, nil, headers)
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestRouterHardensAPIResponses(t *testing.T) {
	s := newTestServer(t, 100)
	headers := map[string]string{common.CustomerHeader: s.customer.String()}
	rr := s.do(t, http.MethodGet, "/api/v1/cart", nil, headers)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	big := map[string]any{"productId": uuid.NewString(), "quantity": 1, "pad": string(make([]byte, 70<<10))}
	rr = s.do(t, http.MethodPost, "/api/v1/cart/lines", big, headers)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
