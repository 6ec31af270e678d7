package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"studiopay/pkg/db/option"
	"studiopay/pkg/errutil"
	"studiopay/pkg/repository"
)

// Service mutates wallet balances. Credit and Debit require the caller's
// transaction handle: a balance change is only ever valid as part of the
// unlock or approval transaction that triggered it.
type Service struct {
	wallets repository.Repository[Wallet]
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		wallets: repository.ProvideStore[Wallet](p.DB),
	}
}

// Get returns the editor's wallet, or nil if none exists yet.
func (s *Service) Get(ctx context.Context, editorID string) (*Wallet, error) {
	return s.wallets.FindOne(ctx, &Wallet{EditorID: editorID})
}

// Credit adds amount to the editor's unlocked balance and lifetime earnings,
// creating the wallet row on first credit. The row is locked for the duration
// of tx so the read-modify-write cannot race a concurrent mutation.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, editorID string, amount decimal.Decimal) (*Wallet, error) {
	if !amount.IsPositive() {
		return nil, errutil.ValidationFailed("credit amount must be positive", nil)
	}

	wallets := s.wallets.WithTrx(tx)

	now := time.Now().UTC()
	current, err := wallets.FindOne(ctx, &Wallet{EditorID: editorID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}

	if current == nil {
		created := &Wallet{
			EditorID:         editorID,
			UnlockedBalance:  amount,
			LifetimeEarnings: amount,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := wallets.Create(ctx, created); err != nil {
			return nil, err
		}
		return created, nil
	}

	current.UnlockedBalance = current.UnlockedBalance.Add(amount)
	current.LifetimeEarnings = current.LifetimeEarnings.Add(amount)
	current.UpdatedAt = now

	if err := wallets.Update(ctx, editorID, map[string]any{
		"unlocked_balance":  current.UnlockedBalance,
		"lifetime_earnings": current.LifetimeEarnings,
		"updated_at":        now,
	}); err != nil {
		return nil, err
	}

	return current, nil
}

// Debit removes amount from the editor's unlocked balance under tx. It fails
// with an insufficient-balance error instead of driving the balance negative.
func (s *Service) Debit(ctx context.Context, tx *gorm.DB, editorID string, amount decimal.Decimal) (*Wallet, error) {
	if !amount.IsPositive() {
		return nil, errutil.ValidationFailed("debit amount must be positive", nil)
	}

	wallets := s.wallets.WithTrx(tx)

	current, err := wallets.FindOne(ctx, &Wallet{EditorID: editorID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}

	if current == nil || current.UnlockedBalance.LessThan(amount) {
		return nil, errutil.BadRequest("insufficient balance", nil)
	}

	now := time.Now().UTC()
	current.UnlockedBalance = current.UnlockedBalance.Sub(amount)
	current.UpdatedAt = now

	if err := wallets.Update(ctx, editorID, map[string]any{
		"unlocked_balance": current.UnlockedBalance,
		"updated_at":       now,
	}); err != nil {
		return nil, err
	}

	return current, nil
}
