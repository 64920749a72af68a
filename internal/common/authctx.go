package common

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type ctxKey string

const customerIDKey ctxKey = "auth/customer-id"

// CustomerHeader carries the customer identity asserted by the upstream gateway.
const CustomerHeader = "X-Customer-ID"

// AdminKeyHeader carries the shared secret guarding administrative routes.
const AdminKeyHeader = "X-Admin-Key"

// WithCustomerID stores the authenticated customer identifier on the provided context.
func WithCustomerID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, customerIDKey, id)
}

// CustomerID extracts the authenticated customer identifier from the context if present.
func CustomerID(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(customerIDKey)
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// OptionalCustomer attaches the customer id when the header is present and
// well-formed, and otherwise lets the request through anonymously.
func OptionalCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(CustomerHeader))); err == nil && id != uuid.Nil {
			r = r.WithContext(WithCustomerID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCustomer rejects requests without a valid customer identity.
func RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(CustomerHeader)))
		if err != nil || id == uuid.Nil {
			JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "customer identity required", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCustomerID(r.Context(), id)))
	})
}

// RequireAdminKey guards administrative routes with a shared key. An empty key
// disables the routes entirely.
func RequireAdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(AdminKeyHeader)
			if key == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				JSONError(w, http.StatusForbidden, "FORBIDDEN", "admin access required", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
