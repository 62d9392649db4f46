package accounting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository persists ledger entities in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	cfg  db.TxConfig
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, cfg db.TxConfig) *Repository {
	return &Repository{pool: pool, cfg: cfg}
}

// WithTx executes fn within a read committed transaction. Lock contention is
// reported as ErrConcurrency so the service can retry.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if r == nil || r.pool == nil {
		return errors.New("accounting repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, r.cfg, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
	return mapPgError(err)
}

func mapPgError(err error) error {
	if err != nil && db.IsContention(err) {
		return fmt.Errorf("%w: %v", ErrConcurrency, err)
	}
	return err
}

// TxRepository implements Tx over a pgx transaction. Other modules embed it to
// share the ledger's unit of work.
type TxRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps tx.
func NewTxRepository(tx pgx.Tx) *TxRepository {
	return &TxRepository{tx: tx}
}

// PgxTx exposes the underlying transaction.
func (r *TxRepository) PgxTx() pgx.Tx { return r.tx }

const accountColumns = `id, tenant_id, company_id, code, name, type, parent_id, balance, is_active, version, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Scope.TenantID, &a.Scope.CompanyID, &a.Code, &a.Name, &a.Type, &a.ParentID,
		&a.Balance, &a.IsActive, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *TxRepository) GetAccount(ctx context.Context, scope Scope, id int64) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: id %d", ErrAccountNotFound, id)
	}
	return a, err
}

func (r *TxRepository) GetAccounts(ctx context.Context, scope Scope, ids []int64) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND company_id=$2 AND id = ANY($3) ORDER BY id`,
		scope.TenantID, scope.CompanyID, ids)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *TxRepository) ListAccounts(ctx context.Context, scope Scope) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND company_id=$2 ORDER BY code`,
		scope.TenantID, scope.CompanyID)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *TxRepository) InsertAccount(ctx context.Context, a Account) (Account, error) {
	a.Balance = decimal.Zero
	err := r.tx.QueryRow(ctx, `INSERT INTO accounts (tenant_id, company_id, code, name, type, parent_id, balance, is_active, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,0,$7,1,$8,$8) RETURNING id, version`,
		a.Scope.TenantID, a.Scope.CompanyID, a.Code, a.Name, string(a.Type), a.ParentID, a.IsActive, a.CreatedAt).
		Scan(&a.ID, &a.Version)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_accounts_code") {
			return Account{}, fmt.Errorf("%w: %s", ErrDuplicateCode, a.Code)
		}
		if db.IsForeignKeyViolation(err) {
			return Account{}, ErrInvalidParent
		}
		return Account{}, err
	}
	return a, nil
}

func (r *TxRepository) UpdateAccount(ctx context.Context, a Account) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET name=$4, parent_id=$5, is_active=$6, version=version+1, updated_at=$7
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 AND version=$8`,
		a.Scope.TenantID, a.Scope.CompanyID, a.ID, a.Name, a.ParentID, a.IsActive, a.UpdatedAt, a.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	return nil
}

func (r *TxRepository) DeleteAccount(ctx context.Context, scope Scope, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE tenant_id=$1 AND company_id=$2 AND id=$3`, scope.TenantID, scope.CompanyID, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrAccountInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrAccountNotFound, id)
	}
	return nil
}

func (r *TxRepository) AccountHasLines(ctx context.Context, scope Scope, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE e.tenant_id=$1 AND e.company_id=$2 AND l.account_id=$3)`, scope.TenantID, scope.CompanyID, id).Scan(&exists)
	return exists, err
}

func (r *TxRepository) LockAccounts(ctx context.Context, scope Scope, ids []int64) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND company_id=$2 AND id = ANY($3) ORDER BY id FOR UPDATE`,
		scope.TenantID, scope.CompanyID, ids)
	if err != nil {
		return nil, mapPgError(err)
	}
	accounts, err := collectAccounts(rows)
	return accounts, mapPgError(err)
}

func (r *TxRepository) UpdateAccountBalance(ctx context.Context, scope Scope, id int64, balance decimal.Decimal, expectedVersion int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET balance=$4, version=version+1, updated_at=NOW()
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 AND version=$5`, scope.TenantID, scope.CompanyID, id, balance, expectedVersion)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %d", ErrStaleVersion, id)
	}
	return nil
}

const entryColumns = `id, tenant_id, company_id, number, date, memo, reference, entry_type, status, created_by, posted_by, posted_at,
reversal_of, source_module, source_id, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var (
		e      JournalEntry
		source uuid.NullUUID
	)
	err := row.Scan(&e.ID, &e.Scope.TenantID, &e.Scope.CompanyID, &e.Number, &e.Date, &e.Memo, &e.Reference, &e.EntryType,
		&e.Status, &e.CreatedBy, &e.PostedBy, &e.PostedAt, &e.ReversalOf, &e.SourceModule, &source, &e.CreatedAt, &e.UpdatedAt)
	if source.Valid {
		e.SourceID = source.UUID
	}
	return e, err
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func (r *TxRepository) InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	if err := r.tx.QueryRow(ctx, `INSERT INTO ledger_sequences (tenant_id, company_id, name, value) VALUES ($1,$2,'journal',1)
ON CONFLICT (tenant_id, company_id, name) DO UPDATE SET value = ledger_sequences.value + 1 RETURNING value`,
		e.Scope.TenantID, e.Scope.CompanyID).Scan(&e.Number); err != nil {
		return JournalEntry{}, mapPgError(err)
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (tenant_id, company_id, number, date, memo, reference, entry_type, status,
created_by, reversal_of, source_module, source_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13) RETURNING id`,
		e.Scope.TenantID, e.Scope.CompanyID, e.Number, e.Date, e.Memo, e.Reference, e.EntryType, string(e.Status),
		e.CreatedBy, e.ReversalOf, e.SourceModule, nullUUID(e.SourceID), e.CreatedAt).Scan(&e.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_journal_entries_source") {
			return JournalEntry{}, fmt.Errorf("%w: source %s/%s", ErrConcurrency, e.SourceModule, e.SourceID)
		}
		return JournalEntry{}, err
	}
	for i := range e.Lines {
		line := &e.Lines[i]
		line.EntryID = e.ID
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, line_no, account_id, debit, credit, memo, department_id, project_id, location_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
			e.ID, line.LineNo, line.AccountID, line.Debit, line.Credit, line.Memo,
			line.Dimensions.DepartmentID, line.Dimensions.ProjectID, line.Dimensions.LocationID).Scan(&line.ID)
		if err != nil {
			return JournalEntry{}, err
		}
	}
	return e, nil
}

func (r *TxRepository) loadLines(ctx context.Context, entryID int64) ([]JournalLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, line_no, account_id, debit, credit, memo, department_id, project_id, location_id
FROM journal_lines WHERE entry_id=$1 ORDER BY line_no`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.LineNo, &l.AccountID, &l.Debit, &l.Credit, &l.Memo,
			&l.Dimensions.DepartmentID, &l.Dimensions.ProjectID, &l.Dimensions.LocationID); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *TxRepository) getEntry(ctx context.Context, scope Scope, id int64, lock bool) (JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE tenant_id=$1 AND company_id=$2 AND id=$3`
	if lock {
		query += ` FOR UPDATE`
	}
	e, err := scanEntry(r.tx.QueryRow(ctx, query, scope.TenantID, scope.CompanyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, entryNotFound(id)
		}
		return JournalEntry{}, mapPgError(err)
	}
	if e.Lines, err = r.loadLines(ctx, e.ID); err != nil {
		return JournalEntry{}, err
	}
	return e, nil
}

func (r *TxRepository) GetEntry(ctx context.Context, scope Scope, id int64) (JournalEntry, error) {
	return r.getEntry(ctx, scope, id, false)
}

func (r *TxRepository) GetEntryForUpdate(ctx context.Context, scope Scope, id int64) (JournalEntry, error) {
	return r.getEntry(ctx, scope, id, true)
}

func (r *TxRepository) FindEntryBySource(ctx context.Context, scope Scope, module string, sourceID uuid.UUID) (JournalEntry, bool, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM journal_entries WHERE tenant_id=$1 AND company_id=$2 AND source_module=$3 AND source_id=$4`,
		scope.TenantID, scope.CompanyID, module, sourceID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return JournalEntry{}, false, nil
	}
	if err != nil {
		return JournalEntry{}, false, err
	}
	e, err := r.getEntry(ctx, scope, id, false)
	return e, err == nil, err
}

func (r *TxRepository) FindReversal(ctx context.Context, scope Scope, entryID int64) (int64, bool, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM journal_entries WHERE tenant_id=$1 AND company_id=$2 AND reversal_of=$3 AND status <> 'REJECTED' LIMIT 1`,
		scope.TenantID, scope.CompanyID, entryID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	return id, err == nil, err
}

func (r *TxRepository) UpdateEntryStatus(ctx context.Context, scope Scope, id int64, status EntryStatus, postedBy *int64, postedAt *time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$4, posted_by=COALESCE($5, posted_by), posted_at=COALESCE($6, posted_at), updated_at=NOW()
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`, scope.TenantID, scope.CompanyID, id, string(status), postedBy, postedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entryNotFound(id)
	}
	return nil
}

const approvalColumns = `id, tenant_id, company_id, entry_id, entry_type, step_index, required_role, status, requested_by, approver_id,
reason, requested_at, decided_at, escalated_at, escalated_role`

func scanApproval(row pgx.Row) (Approval, error) {
	var a Approval
	err := row.Scan(&a.ID, &a.Scope.TenantID, &a.Scope.CompanyID, &a.EntryID, &a.EntryType, &a.StepIndex, &a.RequiredRole,
		&a.Status, &a.RequestedBy, &a.ApproverID, &a.Reason, &a.RequestedAt, &a.DecidedAt, &a.EscalatedAt, &a.EscalatedRole)
	return a, err
}

func collectApprovals(rows pgx.Rows) ([]Approval, error) {
	defer rows.Close()
	var out []Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *TxRepository) InsertApproval(ctx context.Context, a Approval) (Approval, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entry_approvals (tenant_id, company_id, entry_id, entry_type, step_index, required_role,
status, requested_by, requested_at, reason, escalated_role)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'','') RETURNING id`,
		a.Scope.TenantID, a.Scope.CompanyID, a.EntryID, a.EntryType, a.StepIndex, a.RequiredRole, string(a.Status),
		a.RequestedBy, a.RequestedAt).Scan(&a.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_journal_entry_approvals_pending") {
			return Approval{}, fmt.Errorf("%w: entry %d already has a pending approval", ErrConcurrency, a.EntryID)
		}
		return Approval{}, err
	}
	return a, nil
}

func (r *TxRepository) GetApprovalForUpdate(ctx context.Context, scope Scope, id int64) (Approval, error) {
	a, err := scanApproval(r.tx.QueryRow(ctx, `SELECT `+approvalColumns+` FROM journal_entry_approvals
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 FOR UPDATE`, scope.TenantID, scope.CompanyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Approval{}, fmt.Errorf("%w: id %d", ErrApprovalNotFound, id)
	}
	return a, mapPgError(err)
}

func (r *TxRepository) UpdateApproval(ctx context.Context, a Approval) error {
	_, err := r.tx.Exec(ctx, `UPDATE journal_entry_approvals SET status=$4, approver_id=$5, reason=$6, decided_at=$7, escalated_at=$8, escalated_role=$9
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		a.Scope.TenantID, a.Scope.CompanyID, a.ID, string(a.Status), a.ApproverID, a.Reason, a.DecidedAt, a.EscalatedAt, a.EscalatedRole)
	return err
}

func (r *TxRepository) ListApprovals(ctx context.Context, scope Scope, entryID int64) ([]Approval, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+approvalColumns+` FROM journal_entry_approvals
WHERE tenant_id=$1 AND company_id=$2 AND entry_id=$3 ORDER BY step_index, id`, scope.TenantID, scope.CompanyID, entryID)
	if err != nil {
		return nil, err
	}
	return collectApprovals(rows)
}

func (r *TxRepository) ListPendingApprovals(ctx context.Context, scope Scope, requestedBefore time.Time) ([]Approval, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+approvalColumns+` FROM journal_entry_approvals
WHERE tenant_id=$1 AND company_id=$2 AND status='PENDING' AND requested_at <= $3 ORDER BY requested_at, id`,
		scope.TenantID, scope.CompanyID, requestedBefore)
	if err != nil {
		return nil, err
	}
	return collectApprovals(rows)
}

func (r *TxRepository) SumPostedByAccount(ctx context.Context, scope Scope, asOf time.Time) ([]AccountTotals, error) {
	rows, err := r.tx.Query(ctx, `SELECT l.account_id, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE e.tenant_id=$1 AND e.company_id=$2 AND e.status='POSTED' AND e.date <= $3
GROUP BY l.account_id ORDER BY l.account_id`, scope.TenantID, scope.CompanyID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountTotals
	for rows.Next() {
		var t AccountTotals
		if err := rows.Scan(&t.AccountID, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TxRepository) SumPostedBefore(ctx context.Context, scope Scope, accountID int64, before time.Time) (AccountTotals, error) {
	t := AccountTotals{AccountID: accountID}
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE e.tenant_id=$1 AND e.company_id=$2 AND e.status='POSTED' AND l.account_id=$3 AND e.date < $4`,
		scope.TenantID, scope.CompanyID, accountID, before).Scan(&t.Debit, &t.Credit)
	return t, err
}

func (r *TxRepository) ListPostedLines(ctx context.Context, scope Scope, accountID int64, rng Range) ([]PostedLine, error) {
	var from, to *time.Time
	if !rng.From.IsZero() {
		from = &rng.From
	}
	if !rng.To.IsZero() {
		to = &rng.To
	}
	rows, err := r.tx.Query(ctx, `SELECT e.id, e.number, e.date, COALESCE(NULLIF(l.memo, ''), e.memo), l.line_no, l.account_id, l.debit, l.credit
FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE e.tenant_id=$1 AND e.company_id=$2 AND e.status='POSTED' AND l.account_id=$3
AND ($4::date IS NULL OR e.date >= $4) AND ($5::date IS NULL OR e.date <= $5)
ORDER BY e.date, e.id, l.line_no`, scope.TenantID, scope.CompanyID, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PostedLine
	for rows.Next() {
		var p PostedLine
		if err := rows.Scan(&p.EntryID, &p.EntryNumber, &p.Date, &p.Memo, &p.LineNo, &p.AccountID, &p.Debit, &p.Credit); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LastAuditHash also takes a transaction-scoped advisory lock on the scope's
// audit chain so concurrent writers append in turn.
func (r *TxRepository) LastAuditHash(ctx context.Context, scope Scope) ([]byte, error) {
	key := fmt.Sprintf("audit:%d:%d", scope.TenantID, scope.CompanyID)
	if _, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return nil, mapPgError(err)
	}
	var hash []byte
	err := r.tx.QueryRow(ctx, `SELECT hash FROM audit_events WHERE tenant_id=$1 AND company_id=$2 ORDER BY id DESC LIMIT 1`,
		scope.TenantID, scope.CompanyID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return hash, err
}

func (r *TxRepository) AppendAudit(ctx context.Context, e AuditEvent) error {
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO audit_events (tenant_id, company_id, action, entry_id, account_id, actor_id, before, after, meta, at, prev_hash, hash)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		e.Scope.TenantID, e.Scope.CompanyID, string(e.Action), e.EntryID, e.AccountID, e.ActorID,
		decimalPtr(e.Before), decimalPtr(e.After), meta, e.At, e.PrevHash, e.Hash)
	return err
}

func (r *TxRepository) ListAudit(ctx context.Context, scope Scope) ([]AuditEvent, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, action, entry_id, account_id, actor_id, before, after, meta, at, prev_hash, hash
FROM audit_events WHERE tenant_id=$1 AND company_id=$2 ORDER BY id`, scope.TenantID, scope.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditEvent
	for rows.Next() {
		var (
			e             AuditEvent
			action        string
			before, after decimal.NullDecimal
			meta          []byte
		)
		if err := rows.Scan(&e.ID, &action, &e.EntryID, &e.AccountID, &e.ActorID, &before, &after, &meta, &e.At, &e.PrevHash, &e.Hash); err != nil {
			return nil, err
		}
		e.Scope = scope
		e.Action = AuditAction(action)
		if before.Valid {
			e.Before = &before.Decimal
		}
		if after.Valid {
			e.After = &after.Decimal
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, fmt.Errorf("audit event %d meta: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func decimalPtr(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func (r *TxRepository) ListScopes(ctx context.Context) ([]Scope, error) {
	rows, err := r.tx.Query(ctx, `SELECT DISTINCT tenant_id, company_id FROM accounts ORDER BY tenant_id, company_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Scope
	for rows.Next() {
		var s Scope
		if err := rows.Scan(&s.TenantID, &s.CompanyID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var (
	_ Store = (*Repository)(nil)
	_ Tx    = (*TxRepository)(nil)
)
