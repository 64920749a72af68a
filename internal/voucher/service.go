package voucher

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-commerce/internal/common"
	"github.com/noah-isme/toko-commerce/internal/db"
)

// Querier captures the database methods required by the voucher service.
type Querier interface {
	GetDiscountCodeByCode(ctx context.Context, code string) (db.DiscountCode, error)
	IncrementDiscountUsage(ctx context.Context, id uuid.UUID) (int32, error)
}

// Service encapsulates discount code lookup, evaluation and redemption. Every
// method takes the querier explicitly so callers can pass their transaction.
type Service struct {
	Now    func() time.Time
	Logger zerolog.Logger
}

// NewService constructs a Service using the wall clock.
func NewService(logger zerolog.Logger) *Service {
	return &Service{Now: time.Now, Logger: logger}
}

// Lookup loads the code case-insensitively.
func (s *Service) Lookup(ctx context.Context, q Querier, code string) (Rule, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return Rule{}, common.Validation("discount code is required")
	}
	model, err := q.GetDiscountCodeByCode(ctx, trimmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, common.NotFound("discount code")
		}
		return Rule{}, err
	}
	return RuleFromModel(model), nil
}

// Apply looks the code up and evaluates it against items. Rule violations are
// reported as DiscountNotApplicable wrapping the specific reason.
func (s *Service) Apply(ctx context.Context, q Querier, code string, customerID *uuid.UUID, items []Item, shipping int64) (Evaluation, error) {
	rule, err := s.Lookup(ctx, q, code)
	if err != nil {
		return Evaluation{}, err
	}
	eval, err := Evaluate(s.now(), customerID, items, shipping, rule)
	if err != nil {
		return Evaluation{}, common.DiscountNotApplicable(err)
	}
	return eval, nil
}

// Redeem increments the usage counter of the code. It fails with
// ErrUsageLimitReached when the limit was consumed concurrently.
func (s *Service) Redeem(ctx context.Context, q Querier, rule Rule) error {
	count, err := q.IncrementDiscountUsage(ctx, rule.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.DiscountNotApplicable(ErrUsageLimitReached)
		}
		return err
	}
	s.Logger.Debug().Str("code", rule.Code).Int32("usage_count", count).Msg("discount code redeemed")
	return nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
