package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"ticket-market/internal/status"
	"ticket-market/models"
)

const balanceCacheTTL = 30 * time.Second

// BalanceService owns the per-user balance and its immutable ledger. Every
// mutation writes a BalanceEntry so the balance stays explained by its
// history.
type BalanceService struct {
	app   core.App
	Redis *redis.Client
}

func NewBalanceService(app core.App, redisClient *redis.Client) *BalanceService {
	return &BalanceService{app: app, Redis: redisClient}
}

func (s *BalanceService) GetOrCreate(ctx context.Context, userID string) (*models.UserBalance, error) {
	rec, err := s.balanceRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	return balanceFromRecord(rec), nil
}

// Current returns the user's balance, served from the redis cache when
// warm. The cache is best-effort; the record is authoritative.
func (s *BalanceService) Current(ctx context.Context, userID string) (decimal.Decimal, error) {
	cacheKey := fmt.Sprintf("balance:%s", userID)

	if cached, err := s.Redis.Get(ctx, cacheKey).Result(); err == nil {
		if d, derr := decimal.NewFromString(cached); derr == nil {
			return d, nil
		}
	}

	bal, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	s.Redis.Set(ctx, cacheKey, bal.Balance.String(), balanceCacheTTL)
	return bal.Balance, nil
}

// Credit adds sale proceeds or other income to the balance.
func (s *BalanceService) Credit(ctx context.Context, userID string, amount decimal.Decimal, description, refType, refID string) (*models.UserBalance, error) {
	return s.apply(ctx, userID, amount, models.EntryCredit, description, refType, refID)
}

// Debit spends from the balance; this is the authoritative sufficiency
// check for balance-funded purchases.
func (s *BalanceService) Debit(ctx context.Context, userID string, amount decimal.Decimal, description, refType, refID string) (*models.UserBalance, error) {
	return s.apply(ctx, userID, amount, models.EntryDebit, description, refType, refID)
}

// Refund credits a buyer back after a refunded transaction.
func (s *BalanceService) Refund(ctx context.Context, userID string, amount decimal.Decimal, description, refType, refID string) (*models.UserBalance, error) {
	return s.apply(ctx, userID, amount, models.EntryRefund, description, refType, refID)
}

func (s *BalanceService) apply(ctx context.Context, userID string, amount decimal.Decimal, entryType, description, refType, refID string) (*models.UserBalance, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, status.ErrInvalidAmount
	}

	rec, err := s.balanceRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	current := recDecimal(rec, "balance")

	next := current
	switch entryType {
	case models.EntryDebit, models.EntryWithdrawal:
		if current.LessThan(amount) {
			return nil, status.ErrInsufficientBalance
		}
		next = current.Sub(amount)
	default:
		next = current.Add(amount)
	}

	rec.Set("balance", RoundToCents(next).InexactFloat64())
	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return nil, fmt.Errorf("balance: save: %w", err)
	}

	collection, err := s.app.FindCollectionByNameOrId("balance_entries")
	if err != nil {
		return nil, fmt.Errorf("balance: entries collection: %w", err)
	}
	entry := core.NewRecord(collection)
	entry.Set("user", userID)
	entry.Set("type", entryType)
	entry.Set("amount", RoundToCents(amount).InexactFloat64())
	entry.Set("description", description)
	entry.Set("reference_type", refType)
	entry.Set("reference_id", refID)
	if err := s.app.SaveWithContext(ctx, entry); err != nil {
		return nil, fmt.Errorf("balance: save entry: %w", err)
	}

	s.Redis.Set(ctx, fmt.Sprintf("balance:%s", userID), RoundToCents(next).String(), balanceCacheTTL)

	return balanceFromRecord(rec), nil
}

// History returns the user's ledger entries, newest first.
func (s *BalanceService) History(ctx context.Context, userID string) ([]*models.BalanceEntry, error) {
	records, err := s.app.FindRecordsByFilter(
		"balance_entries",
		"user = {:user}",
		"-created",
		200,
		0,
		dbx.Params{"user": userID},
	)
	if err != nil {
		return nil, fmt.Errorf("balance: history: %w", err)
	}

	entries := make([]*models.BalanceEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, entryFromRecord(r))
	}
	return entries, nil
}

// Audit recomputes the balance from the signed ledger sum and reports
// whether it matches the stored balance.
func (s *BalanceService) Audit(ctx context.Context, userID string) (bool, decimal.Decimal, error) {
	var rows []struct {
		Type   string  `db:"type"`
		Amount float64 `db:"amount"`
	}

	err := s.app.DB().
		Select("type", "amount").
		From("balance_entries").
		Where(dbx.HashExp{"user": userID}).
		All(&rows)
	if err != nil {
		return false, decimal.Zero, fmt.Errorf("balance: audit query: %w", err)
	}

	sum := decimal.Zero
	for _, row := range rows {
		entry := models.BalanceEntry{Type: row.Type, Amount: decimal.NewFromFloat(row.Amount)}
		sum = sum.Add(entry.Signed())
	}
	sum = RoundToCents(sum)

	bal, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return false, decimal.Zero, err
	}

	return bal.Balance.Equal(sum), sum, nil
}

func (s *BalanceService) balanceRecord(ctx context.Context, userID string) (*core.Record, error) {
	records, err := s.app.FindRecordsByFilter(
		"balances",
		"user = {:user}",
		"",
		1,
		0,
		dbx.Params{"user": userID},
	)
	if err != nil {
		return nil, fmt.Errorf("balance: lookup: %w", err)
	}
	if len(records) > 0 {
		return records[0], nil
	}

	collection, err := s.app.FindCollectionByNameOrId("balances")
	if err != nil {
		return nil, fmt.Errorf("balance: collection: %w", err)
	}

	rec := core.NewRecord(collection)
	rec.Set("user", userID)
	rec.Set("balance", 0.0)
	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return nil, fmt.Errorf("balance: create: %w", err)
	}
	return rec, nil
}
