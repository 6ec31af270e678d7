package withdrawal

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"studiopay/internal/config"
	"studiopay/pkg/errutil"
	"studiopay/services/audit"
	"studiopay/services/testutil"
	"studiopay/services/wallet"
)

type fixture struct {
	db      *gorm.DB
	svc     *Service
	wallets *wallet.Service
	audits  *audit.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &PayoutRequest{}, &wallet.Wallet{}, &audit.Entry{})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Payout.MinimumRequestAmount = "500"

	wallets := wallet.NewService(wallet.ServiceParams{DB: db})
	audits := audit.NewService(audit.ServiceParams{DB: db, Node: node})

	svc, err := NewService(ServiceParams{
		DB:      db,
		Node:    node,
		Config:  cfg,
		Wallets: wallets,
		Audits:  audits,
	})
	require.NoError(t, err)

	return &fixture{db: db, svc: svc, wallets: wallets, audits: audits}
}

func (f *fixture) fund(t *testing.T, editorID string, amount string) {
	t.Helper()
	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.wallets.Credit(context.Background(), tx, editorID, decimal.RequireFromString(amount))
		return err
	})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, editorID string) decimal.Decimal {
	t.Helper()
	w, err := f.wallets.Get(context.Background(), editorID)
	require.NoError(t, err)
	require.NotNil(t, w)
	return w.UnlockedBalance
}

func requireStatus(t *testing.T, err error, status errutil.CoreStatus) {
	t.Helper()
	require.Error(t, err)
	baseErr, ok := err.(errutil.BaseError)
	require.Truef(t, ok, "expected BaseError, got %T: %v", err, err)
	require.Equal(t, status, baseErr.Code)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "ed-1", "1000")

	_, err := f.svc.Create(ctx, CreateParams{EditorID: "ed-1", Amount: decimal.NewFromInt(100)})
	requireStatus(t, err, errutil.StatusBadRequest)

	_, err = f.svc.Create(ctx, CreateParams{EditorID: "ed-1", Amount: decimal.NewFromInt(2000)})
	requireStatus(t, err, errutil.StatusBadRequest)

	// A failed creation leaves no request behind.
	var count int64
	require.NoError(t, f.db.Model(&PayoutRequest{}).Count(&count).Error)
	require.EqualValues(t, 0, count)

	request, err := f.svc.Create(ctx, CreateParams{EditorID: "ed-1", Amount: decimal.NewFromInt(600), PayoutMethod: "UPI"})
	require.NoError(t, err)
	require.Equal(t, StatusRequested, request.Status)

	// Creation never debits.
	require.True(t, f.balance(t, "ed-1").Equal(decimal.NewFromInt(1000)))
}

func TestApprove_DebitsWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "ed-1", "1000")

	request, err := f.svc.Create(ctx, CreateParams{EditorID: "ed-1", Amount: decimal.NewFromInt(600)})
	require.NoError(t, err)

	approved, err := f.svc.Approve(ctx, request.RequestID, "reviewer-1")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, "reviewer-1", approved.ProcessedBy)
	require.NotNil(t, approved.ProcessedAt)

	require.True(t, f.balance(t, "ed-1").Equal(decimal.NewFromInt(400)))

	// Approval is one-way: no rejection afterwards.
	_, err = f.svc.Reject(ctx, request.RequestID, "reviewer-2")
	requireStatus(t, err, errutil.StatusConflict)

	_, err = f.svc.Approve(ctx, request.RequestID, "reviewer-2")
	requireStatus(t, err, errutil.StatusConflict)
}

func TestApprove_InsufficientBalanceLeavesRequested(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "ed-1", "1000")

	first, err := f.svc.Create(ctx, CreateParams{EditorID: "ed-1", Amount: decimal.NewFromInt(700)})
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, CreateParams{EditorID: "ed-1", Amount: decimal.NewFromInt(700)})
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, first.RequestID, "reviewer-1")
	require.NoError(t, err)

	// The balance fell to 300 after the first approval, so the second one
	// fails and stays REQUESTED for manual resolution.
	_, err = f.svc.Approve(ctx, second.RequestID, "reviewer-1")
	requireStatus(t, err, errutil.StatusBadRequest)

	current, err := f.svc.Get(ctx, second.RequestID)
	require.NoError(t, err)
	require.Equal(t, StatusRequested, current.Status)
	require.True(t, f.balance(t, "ed-1").Equal(decimal.NewFromInt(300)))
}

func TestMarkPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "ed-1", "1000")

	request, err := f.svc.Create(ctx, CreateParams{EditorID: "ed-1", Amount: decimal.NewFromInt(600)})
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(ctx, request.RequestID, "txn-42")
	requireStatus(t, err, errutil.StatusConflict)

	_, err = f.svc.Approve(ctx, request.RequestID, "reviewer-1")
	require.NoError(t, err)

	paid, err := f.svc.MarkPaid(ctx, request.RequestID, "txn-42")
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.Equal(t, "txn-42", paid.TransactionRef)

	// Paying records the reference only; the debit happened at approval.
	require.True(t, f.balance(t, "ed-1").Equal(decimal.NewFromInt(400)))
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "ed-1", "1000")

	request, err := f.svc.Create(ctx, CreateParams{EditorID: "ed-1", Amount: decimal.NewFromInt(600)})
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, request.RequestID, "reviewer-1")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)

	require.True(t, f.balance(t, "ed-1").Equal(decimal.NewFromInt(1000)))
}

func TestAuditTrailCoversWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "ed-1", "1000")

	request, err := f.svc.Create(ctx, CreateParams{EditorID: "ed-1", Amount: decimal.NewFromInt(600)})
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, request.RequestID, "reviewer-1")
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, request.RequestID, "txn-42")
	require.NoError(t, err)

	entries, err := f.audits.List(ctx, "ed-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, audit.KindRequestCreated, entries[0].Kind)
	require.Equal(t, audit.KindRequestApproved, entries[1].Kind)
	require.Equal(t, audit.KindRequestPaid, entries[2].Kind)

	ok, err := f.audits.VerifyChain(ctx, "ed-1")
	require.NoError(t, err)
	require.True(t, ok)
}
