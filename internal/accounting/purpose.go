package accounting

import (
	"fmt"
	"strings"
)

// Purpose names a role an account plays for generated entries.
type Purpose string

const (
	PurposeCash               Purpose = "CASH"
	PurposeAccountsReceivable Purpose = "ACCOUNTS_RECEIVABLE"
	PurposeAccountsPayable    Purpose = "ACCOUNTS_PAYABLE"
	PurposeRetainedEarnings   Purpose = "RETAINED_EARNINGS"
	PurposeDisposalGain       Purpose = "DISPOSAL_GAIN"
	PurposeDisposalLoss       Purpose = "DISPOSAL_LOSS"
)

// ParsePurpose normalises s into a known purpose.
func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PurposeCash, PurposeAccountsReceivable, PurposeAccountsPayable,
		PurposeRetainedEarnings, PurposeDisposalGain, PurposeDisposalLoss:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown purpose %q", ErrInvalidAccount, s)
}

// PurposeAccounts maps purposes to account ids for one scope.
type PurposeAccounts map[Purpose]int64

// Resolve returns the account mapped to p.
func (m PurposeAccounts) Resolve(p Purpose) (int64, error) {
	if id, ok := m[p]; ok && id > 0 {
		return id, nil
	}
	return 0, fmt.Errorf("%w: purpose %s", ErrMappingNotFound, p)
}
