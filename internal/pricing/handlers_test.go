package pricing_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-commerce/internal/common"
	"github.com/noah-isme/toko-commerce/internal/db"
	"github.com/noah-isme/toko-commerce/internal/db/dbtest"
	"github.com/noah-isme/toko-commerce/internal/pricing"
)

func newPriceRouter(store *dbtest.Store) http.Handler {
	h := &pricing.Handler{Resolver: newResolver(store), Currency: "IDR"}
	r := chi.NewRouter()
	r.With(common.OptionalCustomer).Get("/prices/{productId}", h.Quote)
	return r
}

func TestQuoteHandler(t *testing.T) {
	store := dbtest.New()
	p := seedProduct(store, 100000)
	vip := uuid.New()
	store.AddPriceRule(db.PriceRule{
		Name: "vip", IsPriceList: true, StartDate: now.Add(-time.Hour), IsActive: true,
		CustomerIDs: []uuid.UUID{vip},
		Items:       []db.PriceListItem{{ProductID: p.ID, Amount: 85000}},
	})
	router := newPriceRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/prices/"+p.ID.String()+"?quantity=2", nil)
	req.Header.Set(common.CustomerHeader, vip.String())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data struct {
			FinalPrice    int64  `json:"finalPrice"`
			OriginalPrice int64  `json:"originalPrice"`
			Tier          string `json:"tier"`
			Quantity      int    `json:"quantity"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, int64(85000), body.Data.FinalPrice)
	require.Equal(t, int64(100000), body.Data.OriginalPrice)
	require.Equal(t, "price_list", body.Data.Tier)
	require.Equal(t, 2, body.Data.Quantity)
}

func TestQuoteHandlerErrors(t *testing.T) {
	router := newPriceRouter(dbtest.New())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/prices/not-a-uuid", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/prices/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
