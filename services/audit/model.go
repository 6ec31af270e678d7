package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Kind classifies a money-affecting transition.
type Kind string

const (
	KindPayoutUnlocked  Kind = "PAYOUT_UNLOCKED"
	KindRequestCreated  Kind = "REQUEST_CREATED"
	KindRequestApproved Kind = "REQUEST_APPROVED"
	KindRequestPaid     Kind = "REQUEST_PAID"
	KindRequestRejected Kind = "REQUEST_REJECTED"
)

// Entry is one append-only audit record. Entries for an editor form a hash
// chain: each entry embeds the previous entry's hash, so any rewrite of
// history is detectable.
type Entry struct {
	ID           string          `gorm:"column:id;primaryKey"`
	CreatedAt    time.Time       `gorm:"column:created_at;index"`
	EditorID     string          `gorm:"column:editor_id;index"`
	ProjectID    string          `gorm:"column:project_id;index"`
	Kind         Kind            `gorm:"column:kind"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(20,6)"`
	ReferenceID  string          `gorm:"column:reference_id;index"`
	Description  string          `gorm:"column:description"`
	PreviousHash string          `gorm:"column:previous_hash"`
	Hash         string          `gorm:"column:hash"`
	Metadata     datatypes.JSON  `gorm:"column:metadata"`
}

func (Entry) TableName() string { return "audit_entries" }

func (e *Entry) HashFields() map[string]string {
	return map[string]string{
		"id":            e.ID,
		"editor_id":     e.EditorID,
		"project_id":    e.ProjectID,
		"kind":          string(e.Kind),
		"amount":        e.Amount.String(),
		"reference_id":  e.ReferenceID,
		"description":   e.Description,
		"created_at":    e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash": e.PreviousHash,
	}
}

func (e *Entry) GenerateHash() string {
	fields := e.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	joined := strings.Join(parts, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
