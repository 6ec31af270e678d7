package audit

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"studiopay/pkg/db/option"
	"studiopay/pkg/repository"
)

const genesisHash = "GENESIS"

type Service struct {
	node    *snowflake.Node
	entries repository.Repository[Entry]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:    p.Node,
		entries: repository.ProvideStore[Entry](p.DB),
	}
}

type AppendParams struct {
	EditorID    string
	ProjectID   string
	Kind        Kind
	Amount      decimal.Decimal
	ReferenceID string
	Description string
	Metadata    datatypes.JSON
}

var sortByCreatedAt = option.QuerySortBy{
	SortBy: "created_at",
	Allow:  map[string]bool{"created_at": true},
}

// Append writes one audit entry chained onto the editor's previous entry.
// tx must be the transaction carrying the money mutation being recorded, so
// the entry commits or rolls back together with it; nil uses the base handle.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, p AppendParams) (*Entry, error) {
	entries := s.entries.WithTrx(tx)

	last, err := entries.FindOne(ctx, &Entry{EditorID: p.EditorID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithLockingUpdate(),
	)
	if err != nil {
		return nil, err
	}

	previousHash := genesisHash
	if last != nil {
		previousHash = last.Hash
	}

	entry := &Entry{
		ID:           s.node.Generate().String(),
		CreatedAt:    time.Now().UTC(),
		EditorID:     p.EditorID,
		ProjectID:    p.ProjectID,
		Kind:         p.Kind,
		Amount:       p.Amount,
		ReferenceID:  p.ReferenceID,
		Description:  p.Description,
		PreviousHash: previousHash,
		Metadata:     p.Metadata,
	}
	entry.Hash = entry.GenerateHash()

	if err := entries.Create(ctx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// List returns the editor's audit trail, oldest first.
func (s *Service) List(ctx context.Context, editorID string) ([]*Entry, error) {
	return s.entries.Find(ctx, &Entry{EditorID: editorID}, option.WithSortBy(sortByCreatedAt))
}

// VerifyChain recomputes every hash in the editor's trail and checks the
// chain links. It returns false on any tampered or reordered entry.
func (s *Service) VerifyChain(ctx context.Context, editorID string) (bool, error) {
	entries, err := s.List(ctx, editorID)
	if err != nil {
		return false, err
	}

	lastHash := genesisHash
	for _, entry := range entries {
		if entry.Hash != entry.GenerateHash() || entry.PreviousHash != lastHash {
			return false, nil
		}
		lastHash = entry.Hash
	}

	return true, nil
}
