package wallet

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"studiopay/pkg/errutil"
	"studiopay/services/testutil"
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &Wallet{})
	return NewService(ServiceParams{DB: db}), db
}

func TestCredit(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		w, err := svc.Credit(ctx, tx, "ed-1", decimal.NewFromInt(1000))
		require.NoError(t, err)
		require.True(t, w.UnlockedBalance.Equal(decimal.NewFromInt(1000)))
		return nil
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		w, err := svc.Credit(ctx, tx, "ed-1", decimal.NewFromInt(250))
		require.NoError(t, err)
		require.True(t, w.UnlockedBalance.Equal(decimal.NewFromInt(1250)))
		require.True(t, w.LifetimeEarnings.Equal(decimal.NewFromInt(1250)))
		return nil
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Credit(ctx, tx, "ed-1", decimal.Zero)
		return err
	})
	require.Error(t, err)
}

func TestDebit(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Credit(ctx, tx, "ed-1", decimal.NewFromInt(1000))
		return err
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		w, err := svc.Debit(ctx, tx, "ed-1", decimal.NewFromInt(400))
		require.NoError(t, err)
		require.True(t, w.UnlockedBalance.Equal(decimal.NewFromInt(600)))
		// Lifetime earnings only ever grow.
		require.True(t, w.LifetimeEarnings.Equal(decimal.NewFromInt(1000)))
		return nil
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Debit(ctx, tx, "ed-1", decimal.NewFromInt(601))
		return err
	})
	require.Error(t, err)
	baseErr, ok := err.(errutil.BaseError)
	require.True(t, ok)
	require.Equal(t, errutil.StatusBadRequest, baseErr.Code)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Debit(ctx, tx, "ed-unknown", decimal.NewFromInt(1))
		return err
	})
	require.Error(t, err)

	w, err := svc.Get(ctx, "ed-1")
	require.NoError(t, err)
	require.True(t, w.UnlockedBalance.Equal(decimal.NewFromInt(600)))
}
