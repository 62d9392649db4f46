package mappings

import (
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// AccountMapping links a purpose to a ledger account of one company.
type AccountMapping struct {
	Scope     accounting.Scope
	Purpose   accounting.Purpose
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToPurposeAccounts indexes mappings by purpose.
func ToPurposeAccounts(list []AccountMapping) accounting.PurposeAccounts {
	out := make(accounting.PurposeAccounts, len(list))
	for _, m := range list {
		out[m.Purpose] = m.AccountID
	}
	return out
}
