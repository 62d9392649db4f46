package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const dateLayout = "2006-01-02"

// ProblemRules maps ledger errors to HTTP problem responses.
var ProblemRules = []httpx.Rule{
	{Target: ErrNotAuthorized, Status: http.StatusForbidden, Title: "Not Authorized"},
	{Target: ErrAlreadyDecided, Status: http.StatusConflict, Title: "Already Decided"},
	{Target: ErrApproval, Status: http.StatusUnprocessableEntity, Title: "Approval Rejected"},
	{Target: ErrValidation, Status: http.StatusUnprocessableEntity, Title: "Validation Failed", Code: func(err error) string {
		rule, _ := RuleOf(err)
		return string(rule)
	}},
	{Target: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Target: ErrWorkflow, Status: http.StatusConflict, Title: "Invalid Transition"},
	{Target: ErrConcurrency, Status: http.StatusConflict, Title: "Concurrent Modification"},
	{Target: ErrIntegrity, Status: http.StatusInternalServerError, Title: "Ledger Integrity Violation"},
}

// Handler wires ledger JSON endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	reports singleflight.Group
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.handleListAccounts)
		r.Post("/", h.handleCreateAccount)
		r.Patch("/{id}", h.handlePatchAccount)
		r.Delete("/{id}", h.handleDeleteAccount)
		r.Get("/{id}/hierarchy", h.handleHierarchy)
		r.Get("/{id}/rollup", h.handleRollUp)
	})
	r.Route("/journals", func(r chi.Router) {
		r.Post("/", h.handleCreateEntry)
		r.Get("/{id}", h.handleGetEntry)
		r.Get("/{id}/approvals", h.handleListApprovals)
		r.Post("/{id}/submit", h.handleSubmit)
		r.Post("/{id}/post", h.handlePost)
		r.Post("/{id}/reverse", h.handleReverse)
	})
	r.Post("/approvals/{id}/decision", h.handleDecide)
	r.Get("/reports/trial-balance", h.handleTrialBalance)
	r.Get("/reports/general-ledger", h.handleGeneralLedger)
}

// Caller resolves the scope and actor of an authenticated request.
func Caller(r *http.Request) (Scope, Actor, error) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		return Scope{}, Actor{}, httpx.ErrUnauthorized
	}
	return Scope{TenantID: p.TenantID, CompanyID: p.CompanyID}, Actor{ID: p.UserID, Roles: p.Roles}, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !errors.Is(err, ErrValidation) && !errors.Is(err, ErrNotFound) && !errors.Is(err, httpx.ErrValidation) {
		h.logger.WarnContext(r.Context(), "ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err, ProblemRules...)
}

// PathID parses a positive integer URL parameter.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", httpx.ErrValidation, name)
	}
	return id, nil
}

// ParseDate parses an optional YYYY-MM-DD value.
func ParseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", httpx.ErrValidation, raw)
	}
	return t, nil
}

type createAccountRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=200"`
	Type     string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	ParentID *int64 `json:"parent_id,omitempty" validate:"omitempty,gt=0"`
}

type patchAccountRequest struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	ParentID   *int64  `json:"parent_id,omitempty" validate:"omitempty,gt=0"`
	MoveToRoot bool    `json:"move_to_root,omitempty"`
	Deactivate bool    `json:"deactivate,omitempty"`
}

type accountResponse struct {
	ID       int64           `json:"id"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Type     AccountType     `json:"type"`
	ParentID *int64          `json:"parent_id,omitempty"`
	Balance  decimal.Decimal `json:"balance"`
	IsActive bool            `json:"is_active"`
	Version  int64           `json:"version"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{ID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type, ParentID: a.ParentID, Balance: a.Balance, IsActive: a.IsActive, Version: a.Version}
}

func toAccountResponses(list []Account) []accountResponse {
	out := make([]accountResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAccountResponse(a))
	}
	return out
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	scope, _, err := Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), scope)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": toAccountResponses(accounts)})
}

func (h *Handler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	scope, actor, err := Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	acc, err := h.service.CreateAccount(r.Context(), scope, CreateAccountInput{
		Code: req.Code, Name: req.Name, Type: AccountType(req.Type), ParentID: req.ParentID,
	}, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(acc))
}

func (h *Handler) handlePatchAccount(w http.ResponseWriter, r *http.Request) {
	scope, actor, err := Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req patchAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ctx := r.Context()
	var acc Account
	if req.Name != nil {
		if acc, err = h.service.RenameAccount(ctx, scope, id, *req.Name, actor); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if req.ParentID != nil || req.MoveToRoot {
		if acc, err = h.service.ReparentAccount(ctx, scope, id, req.ParentID, actor); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if req.Deactivate {
		if acc, err = h.service.DeactivateAccount(ctx, scope, id, actor); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if acc.ID == 0 {
		h.fail(w, r, fmt.Errorf("%w: no change requested", httpx.ErrValidation))
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(acc))
}

func (h *Handler) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	scope, actor, err := Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteAccount(r.Context(), scope, id, actor); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	scope, _, err := Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ancestors, err := h.service.ResolveHierarchy(r.Context(), scope, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account_id": id, "ancestors": toAccountResponses(ancestors)})
}

func (h *Handler) handleRollUp(w http.ResponseWriter, r *http.Request) {
	scope, _, err := Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	total, err := h.service.RollUp(r.Context(), scope, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account_id": id, "rollup": total})
}

type dimensionsRequest struct {
	DepartmentID *int64 `json:"department_id,omitempty" validate:"omitempty,gt=0"`
	ProjectID    *int64 `json:"project_id,omitempty" validate:"omitempty,gt=0"`
	LocationID   *int64 `json:"location_id,omitempty" validate:"omitempty,gt=0"`
}

type lineRequest struct {
	AccountID  int64             `json:"account_id" validate:"required,gt=0"`
	Debit      decimal.Decimal   `json:"debit"`
	Credit     decimal.Decimal   `json:"credit"`
	Memo       string            `json:"memo,omitempty" validate:"max=500"`
	Dimensions dimensionsRequest `json:"dimensions"`
}

type createEntryRequest struct {
	Date         string        `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Memo         string        `json:"memo" validate:"max=500"`
	Reference    string        `json:"reference,omitempty" validate:"max=100"`
	EntryType    string        `json:"entry_type,omitempty" validate:"max=50"`
	SourceModule string        `json:"source_module,omitempty" validate:"max=50"`
	SourceID     *uuid.UUID    `json:"source_id,omitempty"`
	Lines        []lineRequest `json:"lines" validate:"required,dive"`
}

func (req createEntryRequest) toInput() (CreateEntryInput, error) {
	date, err := ParseDate(req.Date)
	if err != nil {
		return CreateEntryInput{}, err
	}
	in := CreateEntryInput{
		Date:         date,
		Memo:         req.Memo,
		Reference:    req.Reference,
		EntryType:    req.EntryType,
		SourceModule: req.SourceModule,
		Lines:        make([]LineInput, 0, len(req.Lines)),
	}
	if req.SourceID != nil {
		in.SourceID = *req.SourceID
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, LineInput{
			AccountID: l.AccountID,
			Debit:     l.Debit,
			Credit:    l.Credit,
			Memo:      l.Memo,
			Dimensions: Dimensions{
				DepartmentID: l.Dimensions.DepartmentID,
				ProjectID:    l.Dimensions.ProjectID,
				LocationID:   l.Dimensions.LocationID,
			},
		})
	}
	return in, nil
}

type lineResponse struct {
	LineNo     int               `json:"line_no"`
	AccountID  int64             `json:"account_id"`
	Debit      decimal.Decimal   `json:"debit"`
	Credit     decimal.Decimal   `json:"credit"`
	Memo       string            `json:"memo,omitempty"`
	Dimensions dimensionsRequest `json:"dimensions"`
}

type entryResponse struct {
	ID         int64          `json:"id"`
	Number     int64          `json:"number"`
	Date       string         `json:"date"`
	Memo       string         `json:"memo"`
	Reference  string         `json:"reference,omitempty"`
	EntryType  string         `json:"entry_type,omitempty"`
	Status     EntryStatus    `json:"status"`
	CreatedBy  int64          `json:"created_by"`
	PostedBy   *int64         `json:"posted_by,omitempty"`
	PostedAt   *time.Time     `json:"posted_at,omitempty"`
	ReversalOf *int64         `json:"reversal_of,omitempty"`
	Lines      []lineResponse `json:"lines"`
}

func toEntryResponse(e JournalEntry) entryResponse {
	resp := entryResponse{
		ID: e.ID, Number: e.Number, Date: e.Date.Format(dateLayout), Memo: e.Memo, Reference: e.Reference,
		EntryType: e.EntryType, Status: e.Status, CreatedBy: e.CreatedBy, PostedBy: e.PostedBy, PostedAt: e.PostedAt,
		ReversalOf: e.ReversalOf, Lines: make([]lineResponse, 0, len(e.Lines)),
	}
	for _, l := range e.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			LineNo: l.LineNo, AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit, Memo: l.Memo,
			Dimensions: dimensionsRequest{DepartmentID: l.Dimensions.DepartmentID, ProjectID: l.Dimensions.ProjectID, LocationID: l.Dimensions.LocationID},
		})
	}
	return resp
}

func (h *Handler) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	scope, actor, err := Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.service.CreateEntry(r.Context(), scope, in, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	h.entryAction(w, r, http.StatusOK, func(ctx context.Context, scope Scope, id int64, _ Actor) (JournalEntry, error) {
		return h.service.GetEntry(ctx, scope, id)
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.entryAction(w, r, http.StatusOK, h.service.SubmitForApproval)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	h.entryAction(w, r, http.StatusOK, h.service.PostEntry)
}

func (h *Handler) entryAction(w http.ResponseWriter, r *http.Request, status int, fn func(context.Context, Scope, int64, Actor) (JournalEntry, error)) {
	scope, actor, err := Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := fn(r.Context(), scope, id, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, status, toEntryResponse(entry))
}

type reverseRequest struct {
	Date string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Memo string `json:"memo,omitempty" validate:"max=500"`
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := ParseDate(req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.entryAction(w, r, http.StatusCreated, func(ctx context.Context, scope Scope, id int64, actor Actor) (JournalEntry, error) {
		return h.service.ReverseEntry(ctx, scope, id, ReverseInput{Date: date, Memo: req.Memo}, actor)
	})
}

type approvalResponse struct {
	ID            int64          `json:"id"`
	EntryID       int64          `json:"entry_id"`
	StepIndex     int            `json:"step_index"`
	RequiredRole  string         `json:"required_role"`
	Status        ApprovalStatus `json:"status"`
	RequestedBy   int64          `json:"requested_by"`
	ApproverID    *int64         `json:"approver_id,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	RequestedAt   time.Time      `json:"requested_at"`
	DecidedAt     *time.Time     `json:"decided_at,omitempty"`
	EscalatedRole string         `json:"escalated_role,omitempty"`
}

func toApprovalResponse(a Approval) approvalResponse {
	return approvalResponse{
		ID: a.ID, EntryID: a.EntryID, StepIndex: a.StepIndex, RequiredRole: a.RequiredRole, Status: a.Status,
		RequestedBy: a.RequestedBy, ApproverID: a.ApproverID, Reason: a.Reason, RequestedAt: a.RequestedAt,
		DecidedAt: a.DecidedAt, EscalatedRole: a.EscalatedRole,
	}
}

func (h *Handler) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	scope, _, err := Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	approvals, err := h.service.ListApprovals(r.Context(), scope, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]approvalResponse, 0, len(approvals))
	for _, a := range approvals {
		out = append(out, toApprovalResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"approvals": out})
}

type decisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Reason   string `json:"reason,omitempty" validate:"max=500"`
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	scope, actor, err := Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req decisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.DecideApproval(r.Context(), scope, id, Decision{Kind: DecisionKind(req.Decision), Reason: req.Reason}, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := map[string]any{
		"approval": toApprovalResponse(result.Approval),
		"entry":    toEntryResponse(result.Entry),
	}
	if result.Next != nil {
		resp["next"] = toApprovalResponse(*result.Next)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type trialBalanceRowResponse struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      AccountType     `json:"type"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type trialBalanceResponse struct {
	AsOf        string                    `json:"as_of"`
	Rows        []trialBalanceRowResponse `json:"rows"`
	TotalDebit  decimal.Decimal           `json:"total_debit"`
	TotalCredit decimal.Decimal           `json:"total_credit"`
}

// LoadTrialBalance collapses concurrent identical trial balance requests.
func (h *Handler) LoadTrialBalance(ctx context.Context, scope Scope, asOf time.Time) (TrialBalance, error) {
	key := fmt.Sprintf("tb:%d:%d:%s", scope.TenantID, scope.CompanyID, asOf.Format(dateLayout))
	ch := h.reports.DoChan(key, func() (any, error) {
		return h.service.TrialBalance(context.WithoutCancel(ctx), scope, asOf)
	})
	select {
	case <-ctx.Done():
		return TrialBalance{}, ctx.Err()
	case res := <-ch:
		tb, _ := res.Val.(TrialBalance)
		return tb, res.Err
	}
}

// AsOfParam reads ?as_of=, defaulting to today.
func AsOfParam(r *http.Request) (time.Time, error) {
	asOf, err := ParseDate(r.URL.Query().Get("as_of"))
	if err != nil {
		return time.Time{}, err
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC().Truncate(24 * time.Hour)
	}
	return asOf, nil
}

func (h *Handler) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
	scope, _, err := Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	asOf, err := AsOfParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tb, err := h.LoadTrialBalance(r.Context(), scope, asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := trialBalanceResponse{AsOf: asOf.Format(dateLayout), Rows: make([]trialBalanceRowResponse, 0, len(tb.Rows)), TotalDebit: tb.TotalDebit, TotalCredit: tb.TotalCredit}
	for _, row := range tb.Rows {
		resp.Rows = append(resp.Rows, trialBalanceRowResponse(row))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type generalLedgerLineResponse struct {
	EntryID        int64           `json:"entry_id"`
	Number         int64           `json:"number"`
	Date           string          `json:"date"`
	Memo           string          `json:"memo"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	RunningBalance decimal.Decimal `json:"running_balance"`
}

func (h *Handler) handleGeneralLedger(w http.ResponseWriter, r *http.Request) {
	scope, _, err := Caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	accountID, err := strconv.ParseInt(q.Get("account_id"), 10, 64)
	if err != nil || accountID <= 0 {
		h.fail(w, r, fmt.Errorf("%w: account_id required", httpx.ErrValidation))
		return
	}
	from, err := ParseDate(q.Get("from"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := ParseDate(q.Get("to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	gl, err := h.service.GeneralLedger(r.Context(), scope, accountID, Range{From: from, To: to})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lines := make([]generalLedgerLineResponse, 0, len(gl.Lines))
	for _, l := range gl.Lines {
		lines = append(lines, generalLedgerLineResponse{
			EntryID: l.EntryID, Number: l.Number, Date: l.Date.Format(dateLayout), Memo: l.Memo,
			Debit: l.Debit, Credit: l.Credit, RunningBalance: l.RunningBalance,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"account":      toAccountResponse(gl.Account),
		"opening":      gl.Opening,
		"lines":        lines,
		"total_debit":  gl.TotalDebit,
		"total_credit": gl.TotalCredit,
		"closing":      gl.Closing,
	})
}
