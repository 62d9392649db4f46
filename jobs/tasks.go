package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries ledger mutations so they are not starved by sweeps.
	QueueCritical = "critical"

	// TaskDepreciationRun depreciates every active asset for one period.
	TaskDepreciationRun = "depreciation:run"
	// TaskApprovalsEscalate escalates approvals pending past their workflow deadline.
	TaskApprovalsEscalate = "approvals:escalate"
	// TaskLedgerIntegrity recomputes balances and verifies the audit chain.
	TaskLedgerIntegrity = "ledger:integrity"
)

// SystemActorID marks ledger changes made by the scheduler.
const SystemActorID int64 = 0

// DepreciationPayload scopes a depreciation batch. Zero tenant and company ids
// select every scope; an empty period selects the month before the run.
type DepreciationPayload struct {
	TenantID  int64  `json:"tenant_id,omitempty"`
	CompanyID int64  `json:"company_id,omitempty"`
	Period    string `json:"period,omitempty"`
	ActorID   int64  `json:"actor_id,omitempty"`
}

// NewDepreciationRunTask creates an Asynq task for a depreciation batch.
func NewDepreciationRunTask(payload DepreciationPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDepreciationRun, body, asynq.Queue(QueueCritical)), nil
}

// NewApprovalsEscalateTask creates the escalation sweep task.
func NewApprovalsEscalateTask() *asynq.Task {
	return asynq.NewTask(TaskApprovalsEscalate, nil, asynq.Queue(QueueDefault))
}

// IntegrityPayload optionally narrows the integrity sweep to one scope.
type IntegrityPayload struct {
	TenantID  int64 `json:"tenant_id,omitempty"`
	CompanyID int64 `json:"company_id,omitempty"`
}

// NewLedgerIntegrityTask creates the integrity sweep task.
func NewLedgerIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}
