package withdrawal

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"studiopay/internal/config"
	"studiopay/pkg/db/option"
	"studiopay/pkg/errutil"
	"studiopay/pkg/repository"
	"studiopay/services/audit"
	"studiopay/services/wallet"
)

// Service runs the withdrawal state machine REQUESTED -> APPROVED -> PAID,
// with REQUESTED -> REJECTED as the only other edge. Approval is a one-way
// commitment to pay: an APPROVED request cannot be rejected.
type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	wallets  *wallet.Service
	audits   *audit.Service
	minimum  decimal.Decimal
	requests repository.Repository[PayoutRequest]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Config  *config.Config
	Wallets *wallet.Service
	Audits  *audit.Service
}

func NewService(p ServiceParams) (*Service, error) {
	minimum, err := decimal.NewFromString(p.Config.Payout.MinimumRequestAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum request amount %q: %w", p.Config.Payout.MinimumRequestAmount, err)
	}

	return &Service{
		db:       p.DB,
		node:     p.Node,
		wallets:  p.Wallets,
		audits:   p.Audits,
		minimum:  minimum,
		requests: repository.ProvideStore[PayoutRequest](p.DB),
	}, nil
}

type CreateParams struct {
	EditorID     string
	Amount       decimal.Decimal
	PayoutMethod string
}

// Create opens a REQUESTED withdrawal. The balance check here is advisory:
// nothing is debited or reserved, and the amount is re-validated against the
// live balance at approval time.
func (s *Service) Create(ctx context.Context, p CreateParams) (*PayoutRequest, error) {
	if p.EditorID == "" {
		return nil, errutil.ValidationFailed("editor id is required", nil)
	}
	if !p.Amount.IsPositive() {
		return nil, errutil.ValidationFailed("amount must be positive", nil)
	}
	if p.Amount.LessThan(s.minimum) {
		return nil, errutil.BadRequest(fmt.Sprintf("amount is below the minimum of %s", s.minimum), nil)
	}

	var request *PayoutRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		w, err := s.wallets.Get(ctx, p.EditorID)
		if err != nil {
			return err
		}
		if w == nil || w.UnlockedBalance.LessThan(p.Amount) {
			return errutil.BadRequest("insufficient balance", nil)
		}

		now := time.Now().UTC()
		request = &PayoutRequest{
			RequestID:    s.node.Generate().String(),
			EditorID:     p.EditorID,
			Amount:       p.Amount,
			PayoutMethod: p.PayoutMethod,
			Status:       StatusRequested,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.requests.WithTrx(tx).Create(ctx, request); err != nil {
			return err
		}

		_, err = s.audits.Append(ctx, tx, audit.AppendParams{
			EditorID:    p.EditorID,
			Kind:        audit.KindRequestCreated,
			Amount:      p.Amount,
			ReferenceID: request.RequestID,
			Description: "payout request created",
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return request, nil
}

// Approve debits the editor's wallet and moves the request to APPROVED, both
// inside one transaction. If the balance has since fallen below the amount,
// the debit fails and the request stays REQUESTED for manual resolution.
func (s *Service) Approve(ctx context.Context, requestID, reviewerID string) (*PayoutRequest, error) {
	var request *PayoutRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		request, err = s.lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if request.Status != StatusRequested {
			return errutil.Conflict(fmt.Sprintf("request %s is %s, not %s", requestID, request.Status, StatusRequested), nil)
		}

		if _, err := s.wallets.Debit(ctx, tx, request.EditorID, request.Amount); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := s.requests.WithTrx(tx).Update(ctx, requestID, map[string]any{
			"status":       StatusApproved,
			"processed_by": reviewerID,
			"processed_at": now,
			"updated_at":   now,
		}); err != nil {
			return err
		}
		request.Status = StatusApproved
		request.ProcessedBy = reviewerID
		request.ProcessedAt = &now
		request.UpdatedAt = now

		_, err = s.audits.Append(ctx, tx, audit.AppendParams{
			EditorID:    request.EditorID,
			Kind:        audit.KindRequestApproved,
			Amount:      request.Amount,
			ReferenceID: request.RequestID,
			Description: fmt.Sprintf("payout request approved by %s", reviewerID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("payout request approved",
		zap.String("request_id", request.RequestID),
		zap.String("editor_id", request.EditorID),
		zap.String("amount", request.Amount.String()),
	)

	return request, nil
}

// MarkPaid records the disbursement reference on an APPROVED request. The
// balance effect already happened at approval.
func (s *Service) MarkPaid(ctx context.Context, requestID, transactionRef string) (*PayoutRequest, error) {
	if transactionRef == "" {
		return nil, errutil.ValidationFailed("transaction ref is required", nil)
	}

	var request *PayoutRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		request, err = s.lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if request.Status != StatusApproved {
			return errutil.Conflict(fmt.Sprintf("request %s is %s, not %s", requestID, request.Status, StatusApproved), nil)
		}

		now := time.Now().UTC()
		if err := s.requests.WithTrx(tx).Update(ctx, requestID, map[string]any{
			"status":          StatusPaid,
			"transaction_ref": transactionRef,
			"updated_at":      now,
		}); err != nil {
			return err
		}
		request.Status = StatusPaid
		request.TransactionRef = transactionRef
		request.UpdatedAt = now

		_, err = s.audits.Append(ctx, tx, audit.AppendParams{
			EditorID:    request.EditorID,
			Kind:        audit.KindRequestPaid,
			Amount:      request.Amount,
			ReferenceID: request.RequestID,
			Description: fmt.Sprintf("payout disbursed, ref %s", transactionRef),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return request, nil
}

// Reject closes a REQUESTED withdrawal with no balance effect.
func (s *Service) Reject(ctx context.Context, requestID, reviewerID string) (*PayoutRequest, error) {
	var request *PayoutRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		request, err = s.lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if request.Status != StatusRequested {
			return errutil.Conflict(fmt.Sprintf("request %s is %s, not %s", requestID, request.Status, StatusRequested), nil)
		}

		now := time.Now().UTC()
		if err := s.requests.WithTrx(tx).Update(ctx, requestID, map[string]any{
			"status":       StatusRejected,
			"processed_by": reviewerID,
			"processed_at": now,
			"updated_at":   now,
		}); err != nil {
			return err
		}
		request.Status = StatusRejected
		request.ProcessedBy = reviewerID
		request.ProcessedAt = &now
		request.UpdatedAt = now

		_, err = s.audits.Append(ctx, tx, audit.AppendParams{
			EditorID:    request.EditorID,
			Kind:        audit.KindRequestRejected,
			Amount:      request.Amount,
			ReferenceID: request.RequestID,
			Description: fmt.Sprintf("payout request rejected by %s", reviewerID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return request, nil
}

// Get returns one request by id.
func (s *Service) Get(ctx context.Context, requestID string) (*PayoutRequest, error) {
	request, err := s.requests.FindOne(ctx, &PayoutRequest{RequestID: requestID})
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, errutil.NotFound(fmt.Sprintf("payout request %s not found", requestID), nil)
	}
	return request, nil
}

// ListByEditor returns the editor's requests, newest first.
func (s *Service) ListByEditor(ctx context.Context, editorID string) ([]*PayoutRequest, error) {
	return s.requests.Find(ctx, &PayoutRequest{EditorID: editorID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "created_at",
		OrderBy: "desc",
		Allow:   map[string]bool{"created_at": true},
	}))
}

func (s *Service) lockRequest(ctx context.Context, tx *gorm.DB, requestID string) (*PayoutRequest, error) {
	request, err := s.requests.WithTrx(tx).FindOne(ctx, &PayoutRequest{RequestID: requestID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, errutil.NotFound(fmt.Sprintf("payout request %s not found", requestID), nil)
	}
	return request, nil
}
