package accounting

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ConditionKind is the closed set of step conditions.
type ConditionKind string

const (
	ConditionAlways             ConditionKind = "ALWAYS"
	ConditionAmountAtLeast      ConditionKind = "AMOUNT_AT_LEAST"
	ConditionTouchesAccountType ConditionKind = "TOUCHES_ACCOUNT_TYPE"
	ConditionHasDimension       ConditionKind = "HAS_DIMENSION"
)

// Dimension names a line tag checked by ConditionHasDimension.
type Dimension string

const (
	DimensionDepartment Dimension = "DEPARTMENT"
	DimensionProject    Dimension = "PROJECT"
	DimensionLocation   Dimension = "LOCATION"
)

// Condition decides whether a workflow step applies to an entry. Only the
// field matching Kind is meaningful.
type Condition struct {
	Kind        ConditionKind
	Amount      decimal.Decimal
	AccountType AccountType
	Dimension   Dimension
}

// Always applies to every entry.
func Always() Condition { return Condition{Kind: ConditionAlways} }

// AmountAtLeast applies when the entry amount is >= amount.
func AmountAtLeast(amount decimal.Decimal) Condition {
	return Condition{Kind: ConditionAmountAtLeast, Amount: amount}
}

// TouchesAccountType applies when any line posts to an account of type t.
func TouchesAccountType(t AccountType) Condition {
	return Condition{Kind: ConditionTouchesAccountType, AccountType: t}
}

// HasDimension applies when any line carries the dimension.
func HasDimension(d Dimension) Condition {
	return Condition{Kind: ConditionHasDimension, Dimension: d}
}

func (c Condition) validate() error {
	switch c.Kind {
	case ConditionAlways:
		return nil
	case ConditionAmountAtLeast:
		if c.Amount.IsNegative() {
			return fmt.Errorf("%w: negative amount threshold", ErrInvalidWorkflow)
		}
		return nil
	case ConditionTouchesAccountType:
		if !c.AccountType.Valid() {
			return fmt.Errorf("%w: unknown account type %q", ErrInvalidWorkflow, c.AccountType)
		}
		return nil
	case ConditionHasDimension:
		switch c.Dimension {
		case DimensionDepartment, DimensionProject, DimensionLocation:
			return nil
		}
		return fmt.Errorf("%w: unknown dimension %q", ErrInvalidWorkflow, c.Dimension)
	}
	return fmt.Errorf("%w: unknown condition kind %q", ErrInvalidWorkflow, c.Kind)
}

// Holds evaluates the condition. accounts must contain every line's account.
func (c Condition) Holds(entry JournalEntry, accounts map[int64]Account) bool {
	switch c.Kind {
	case ConditionAlways:
		return true
	case ConditionAmountAtLeast:
		return entry.Amount().GreaterThanOrEqual(c.Amount)
	case ConditionTouchesAccountType:
		for _, line := range entry.Lines {
			if acc, ok := accounts[line.AccountID]; ok && acc.Type == c.AccountType {
				return true
			}
		}
	case ConditionHasDimension:
		for _, line := range entry.Lines {
			var tag *int64
			switch c.Dimension {
			case DimensionDepartment:
				tag = line.Dimensions.DepartmentID
			case DimensionProject:
				tag = line.Dimensions.ProjectID
			case DimensionLocation:
				tag = line.Dimensions.LocationID
			}
			if tag != nil {
				return true
			}
		}
	}
	return false
}

// Step is one ordered approval gate.
type Step struct {
	Role           string
	Condition      Condition
	EscalationRole string
}

// Workflow declares the approval gates for an entry type.
type Workflow struct {
	EntryType         string
	Steps             []Step
	AutoApproveBelow  decimal.Decimal
	EscalateAfter     time.Duration
	AllowSelfApproval bool
}

// WorkflowOption customises NewWorkflow.
type WorkflowOption func(*Workflow)

// WithAutoApproveBelow posts entries whose amount is below threshold without approval.
func WithAutoApproveBelow(threshold decimal.Decimal) WorkflowOption {
	return func(w *Workflow) { w.AutoApproveBelow = threshold }
}

// WithEscalateAfter hands pending steps to the escalation role after d.
func WithEscalateAfter(d time.Duration) WorkflowOption {
	return func(w *Workflow) { w.EscalateAfter = d }
}

// WithSelfApproval lets the requester decide their own entry.
func WithSelfApproval() WorkflowOption {
	return func(w *Workflow) { w.AllowSelfApproval = true }
}

// NewWorkflow validates a workflow definition at construction time.
func NewWorkflow(entryType string, steps []Step, opts ...WorkflowOption) (Workflow, error) {
	w := Workflow{EntryType: strings.TrimSpace(entryType), Steps: append([]Step(nil), steps...)}
	for _, opt := range opts {
		opt(&w)
	}
	if w.EntryType == "" {
		return Workflow{}, fmt.Errorf("%w: entry type required", ErrInvalidWorkflow)
	}
	if len(w.Steps) == 0 {
		return Workflow{}, fmt.Errorf("%w: at least one step required", ErrInvalidWorkflow)
	}
	if w.AutoApproveBelow.IsNegative() {
		return Workflow{}, fmt.Errorf("%w: negative auto-approval threshold", ErrInvalidWorkflow)
	}
	if w.EscalateAfter < 0 {
		return Workflow{}, fmt.Errorf("%w: negative escalation delay", ErrInvalidWorkflow)
	}
	for i, step := range w.Steps {
		if strings.TrimSpace(step.Role) == "" {
			return Workflow{}, fmt.Errorf("%w: step %d has no role", ErrInvalidWorkflow, i+1)
		}
		if step.Condition.Kind == "" {
			w.Steps[i].Condition = Always()
		}
		if err := w.Steps[i].Condition.validate(); err != nil {
			return Workflow{}, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return w, nil
}

// autoApproves reports whether amount falls under the auto-approval threshold.
func (w Workflow) autoApproves(amount decimal.Decimal) bool {
	return w.AutoApproveBelow.IsPositive() && amount.LessThan(w.AutoApproveBelow)
}

// nextStep returns the first applicable step index after from (use -1 to start).
func (w Workflow) nextStep(from int, entry JournalEntry, accounts map[int64]Account) (int, bool) {
	for i := from + 1; i < len(w.Steps); i++ {
		if w.Steps[i].Condition.Holds(entry, accounts) {
			return i, true
		}
	}
	return 0, false
}

// WorkflowRegistry maps entry types to workflows.
type WorkflowRegistry struct {
	mu     sync.RWMutex
	byType map[string]Workflow
}

// NewWorkflowRegistry registers workflows; duplicate entry types are rejected.
func NewWorkflowRegistry(workflows ...Workflow) (*WorkflowRegistry, error) {
	r := &WorkflowRegistry{byType: make(map[string]Workflow, len(workflows))}
	for _, w := range workflows {
		if err := r.Register(w); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds w. Workflows must come from NewWorkflow.
func (r *WorkflowRegistry) Register(w Workflow) error {
	if w.EntryType == "" || len(w.Steps) == 0 {
		return fmt.Errorf("%w: workflow not constructed", ErrInvalidWorkflow)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byType[w.EntryType]; exists {
		return fmt.Errorf("%w: duplicate workflow for %s", ErrInvalidWorkflow, w.EntryType)
	}
	r.byType[w.EntryType] = w
	return nil
}

// Lookup returns the workflow for entryType.
func (r *WorkflowRegistry) Lookup(entryType string) (Workflow, bool) {
	if r == nil || entryType == "" {
		return Workflow{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byType[entryType]
	return w, ok
}
