package web

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"studioflow/internal/core"
)

// ── Invoices ─────────────────────────────────────────────────────────────────

type invoiceRequest struct {
	ProjectID       *int            `json:"project_id"`
	LeadID          *int            `json:"lead_id"`
	InvoiceNumber   *string         `json:"invoice_number"`
	InvoiceDate     string          `json:"invoice_date"`
	DueDate         string          `json:"due_date"`
	Amount          decimal.Decimal `json:"amount"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Status          string          `json:"status"`
	Description     string          `json:"description"`
	Lines           []struct {
		Description string          `json:"description"`
		Quantity    decimal.Decimal `json:"quantity"`
		UnitPrice   decimal.Decimal `json:"unit_price"`
	} `json:"lines"`
}

func (req invoiceRequest) toInput() (core.InvoiceInput, error) {
	invoiceDate, err := parseDate(req.InvoiceDate)
	if err != nil {
		return core.InvoiceInput{}, err
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		return core.InvoiceInput{}, err
	}
	input := core.InvoiceInput{
		ProjectID:       req.ProjectID,
		LeadID:          req.LeadID,
		InvoiceNumber:   req.InvoiceNumber,
		InvoiceDate:     invoiceDate,
		DueDate:         dueDate,
		Amount:          req.Amount,
		TaxPercent:      req.TaxPercent,
		DiscountPercent: req.DiscountPercent,
		Status:          core.InvoiceStatus(req.Status),
		Description:     req.Description,
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, core.InvoiceLineInput{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
	}
	return input, nil
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	filter := core.InvoiceFilter{
		ProjectID: queryInt(r, "project_id"),
		LeadID:    queryInt(r, "lead_id"),
		Status:    core.InvoiceStatus(r.URL.Query().Get("status")),
	}
	invoices, err := h.svc.Invoices.GetInvoices(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, invoices)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	invoice, err := h.svc.Invoices.CreateInvoice(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, invoice)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	invoice, totals, err := h.svc.Invoices.GetInvoice(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"invoice": invoice, "totals": totals})
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req invoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	invoice, err := h.svc.Invoices.UpdateInvoice(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, invoice)
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.Invoices.DeleteInvoice(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

type paymentRequest struct {
	PaymentDate string          `json:"payment_date"`
	Amount      decimal.Decimal `json:"amount"`
	AccountID   *int            `json:"account_id"`
	Method      string          `json:"method"`
	Reference   string          `json:"reference"`
	Notes       string          `json:"notes"`
}

func (req paymentRequest) toInput() (core.PaymentInput, error) {
	date, err := dateOrToday(req.PaymentDate)
	if err != nil {
		return core.PaymentInput{}, err
	}
	return core.PaymentInput{
		PaymentDate: date,
		Amount:      req.Amount,
		AccountID:   req.AccountID,
		Method:      req.Method,
		Reference:   req.Reference,
		Notes:       req.Notes,
	}, nil
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req paymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	payment, receipt, err := h.svc.Invoices.RecordPayment(r.Context(), id, input, actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"payment": payment, "receipt": receipt})
}

func (h *Handler) refreshInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	status, err := h.svc.Invoices.RefreshStatus(r.Context(), id, time.Now(), true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]core.InvoiceStatus{"status": status})
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	receipt, err := h.svc.Invoices.GetReceipt(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, receipt)
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := h.svc.Invoices.GetReceipts(r.Context(), queryInt(r, "invoice_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, receipts)
}

// ── Bills ────────────────────────────────────────────────────────────────────

type billRequest struct {
	VendorID    int             `json:"vendor_id"`
	ProjectID   *int            `json:"project_id"`
	BillNumber  string          `json:"bill_number"`
	BillDate    string          `json:"bill_date"`
	DueDate     string          `json:"due_date"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
}

func (req billRequest) toInput() (core.BillInput, error) {
	billDate, err := parseDate(req.BillDate)
	if err != nil {
		return core.BillInput{}, err
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		return core.BillInput{}, err
	}
	return core.BillInput{
		VendorID:    req.VendorID,
		ProjectID:   req.ProjectID,
		BillNumber:  req.BillNumber,
		BillDate:    billDate,
		DueDate:     dueDate,
		Amount:      req.Amount,
		Category:    req.Category,
		Description: req.Description,
	}, nil
}

func (h *Handler) listBills(w http.ResponseWriter, r *http.Request) {
	filter := core.BillFilter{
		VendorID:  queryInt(r, "vendor_id"),
		ProjectID: queryInt(r, "project_id"),
		Status:    core.BillStatus(r.URL.Query().Get("status")),
	}
	bills, err := h.svc.Bills.GetBills(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, bills)
}

func (h *Handler) createBill(w http.ResponseWriter, r *http.Request) {
	var req billRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	bill, err := h.svc.Bills.CreateBill(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, bill)
}

func (h *Handler) getBill(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	bill, err := h.svc.Bills.GetBill(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, bill)
}

func (h *Handler) updateBill(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req billRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	bill, err := h.svc.Bills.UpdateBill(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, bill)
}

func (h *Handler) deleteBill(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.Bills.DeleteBill(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (h *Handler) recordBillPayment(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req paymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	payment, err := h.svc.Bills.RecordBillPayment(r.Context(), id, input, actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payment)
}

// ── Client advances ──────────────────────────────────────────────────────────

func (h *Handler) listAdvances(w http.ResponseWriter, r *http.Request) {
	advances, err := h.svc.Advances.GetAdvances(r.Context(), queryInt(r, "client_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, advances)
}

func (h *Handler) recordAdvance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID     int             `json:"client_id"`
		ProjectID    *int            `json:"project_id"`
		ReceivedDate string          `json:"received_date"`
		Amount       decimal.Decimal `json:"amount"`
		AccountID    *int            `json:"account_id"`
		Method       string          `json:"method"`
		Reference    string          `json:"reference"`
		Notes        string          `json:"notes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	received, err := dateOrToday(req.ReceivedDate)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	advance, err := h.svc.Advances.RecordAdvance(r.Context(), core.AdvanceInput{
		ClientID:     req.ClientID,
		ProjectID:    req.ProjectID,
		ReceivedDate: received,
		Amount:       req.Amount,
		AccountID:    req.AccountID,
		Method:       req.Method,
		Reference:    req.Reference,
		Notes:        req.Notes,
	}, actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, advance)
}

func (h *Handler) deleteAdvance(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.Advances.DeleteAdvance(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (h *Handler) allocateAdvance(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var body struct {
		InvoiceID int             `json:"invoice_id"`
		Amount    decimal.Decimal `json:"amount"`
		Notes     string          `json:"notes"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	alloc, err := h.svc.Advances.Allocate(r.Context(), id, body.InvoiceID, body.Amount, body.Notes, actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, alloc)
}

// ── Expense claims ───────────────────────────────────────────────────────────

func (h *Handler) listClaims(w http.ResponseWriter, r *http.Request) {
	status := core.ClaimStatus(r.URL.Query().Get("status"))
	claims, err := h.svc.Claims.GetClaims(r.Context(), queryInt(r, "employee_id"), status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, claims)
}

func (h *Handler) submitClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmployeeID  int             `json:"employee_id"`
		ProjectID   *int            `json:"project_id"`
		ExpenseDate string          `json:"expense_date"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	expenseDate, err := dateOrToday(req.ExpenseDate)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	claim, err := h.svc.Claims.SubmitClaim(r.Context(), core.ExpenseClaimInput{
		EmployeeID:  req.EmployeeID,
		ProjectID:   req.ProjectID,
		ExpenseDate: expenseDate,
		Amount:      req.Amount,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, claim)
}

func (h *Handler) getClaim(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	claim, err := h.svc.Claims.GetClaim(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, claim)
}

// claimDecision handles approve and reject, which differ only in the service
// call. The approver is the acting user.
func (h *Handler) claimDecision(w http.ResponseWriter, r *http.Request,
	decide func(id, approver int) (*core.ExpenseClaim, error)) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	actor := actorID(r)
	if actor == nil {
		writeError(w, r, "authentication required", "UNAUTHENTICATED", http.StatusUnauthorized)
		return
	}
	claim, err := decide(id, *actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, claim)
}

func (h *Handler) approveClaim(w http.ResponseWriter, r *http.Request) {
	h.claimDecision(w, r, func(id, approver int) (*core.ExpenseClaim, error) {
		return h.svc.Claims.ApproveClaim(r.Context(), id, approver)
	})
}

func (h *Handler) rejectClaim(w http.ResponseWriter, r *http.Request) {
	h.claimDecision(w, r, func(id, approver int) (*core.ExpenseClaim, error) {
		return h.svc.Claims.RejectClaim(r.Context(), id, approver)
	})
}

func (h *Handler) payClaim(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req paymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	payment, err := h.svc.Claims.PayClaim(r.Context(), id, input, actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payment)
}

// ── Accounts and transactions ────────────────────────────────────────────────

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") == ""
	accounts, err := h.svc.Accounts.GetAccounts(r.Context(), activeOnly)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, accounts)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var input core.AccountInput
	if !decodeJSON(w, r, &input) {
		return
	}
	account, err := h.svc.Accounts.CreateAccount(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, account)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var input core.AccountInput
	if !decodeJSON(w, r, &input) {
		return
	}
	account, err := h.svc.Accounts.UpdateAccount(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, account)
}

func (h *Handler) setAccountActive(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var body struct {
		Active bool `json:"active"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.svc.Accounts.SetAccountActive(r.Context(), id, body.Active); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]bool{"active": body.Active})
}

// transactionFilterFromQuery reads from/to dates and id filters off the URL.
func transactionFilterFromQuery(r *http.Request) (core.TransactionFilter, error) {
	filter := core.TransactionFilter{
		AccountID: queryInt(r, "account_id"),
		ProjectID: queryInt(r, "project_id"),
		Category:  core.TransactionCategory(r.URL.Query().Get("category")),
	}
	from, err := optionalDate(r.URL.Query().Get("from"))
	if err != nil {
		return filter, err
	}
	to, err := optionalDate(r.URL.Query().Get("to"))
	if err != nil {
		return filter, err
	}
	filter.From = from
	filter.To = to
	return filter, nil
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := transactionFilterFromQuery(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	txns, err := h.svc.Cashbook.GetTransactions(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, txns)
}

func (h *Handler) recordTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date          string          `json:"date"`
		FromAccountID int             `json:"from_account_id"`
		ToAccountID   int             `json:"to_account_id"`
		Amount        decimal.Decimal `json:"amount"`
		Notes         string          `json:"notes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	date, err := dateOrToday(req.Date)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	err = h.svc.Cashbook.RecordTransfer(r.Context(), date, req.FromAccountID, req.ToAccountID,
		req.Amount, req.Notes, actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "recorded"})
}

func (h *Handler) recordSalaryPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date      string          `json:"date"`
		PersonID  int             `json:"person_id"`
		Amount    decimal.Decimal `json:"amount"`
		AccountID *int            `json:"account_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	date, err := dateOrToday(req.Date)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	err = h.svc.Cashbook.RecordSalaryPayment(r.Context(), date, req.PersonID, req.Amount,
		req.AccountID, actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "recorded"})
}

// ── Recurring rules ──────────────────────────────────────────────────────────

type recurringRuleRequest struct {
	Name        string          `json:"name"`
	Direction   string          `json:"direction"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	AccountID   *int            `json:"account_id"`
	ProjectID   *int            `json:"project_id"`
	VendorID    *int            `json:"vendor_id"`
	DayOfMonth  int             `json:"day_of_month"`
	StartDate   string          `json:"start_date"`
}

func (req recurringRuleRequest) toInput() (core.RecurringRuleInput, error) {
	start, err := dateOrToday(req.StartDate)
	if err != nil {
		return core.RecurringRuleInput{}, err
	}
	return core.RecurringRuleInput{
		Name:        req.Name,
		Direction:   core.Direction(req.Direction),
		Category:    core.TransactionCategory(req.Category),
		Description: req.Description,
		Amount:      req.Amount,
		AccountID:   req.AccountID,
		ProjectID:   req.ProjectID,
		VendorID:    req.VendorID,
		DayOfMonth:  req.DayOfMonth,
		StartDate:   start,
	}, nil
}

func (h *Handler) listRecurringRules(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") == ""
	rules, err := h.svc.Recurring.GetRules(r.Context(), activeOnly)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rules)
}

func (h *Handler) createRecurringRule(w http.ResponseWriter, r *http.Request) {
	var req recurringRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	rule, err := h.svc.Recurring.CreateRule(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rule)
}

func (h *Handler) updateRecurringRule(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req recurringRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	rule, err := h.svc.Recurring.UpdateRule(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rule)
}

func (h *Handler) setRecurringRuleActive(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var body struct {
		Active bool `json:"active"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.svc.Recurring.SetRuleActive(r.Context(), id, body.Active); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]bool{"active": body.Active})
}

func (h *Handler) runRecurringRules(w http.ResponseWriter, r *http.Request) {
	created, err := h.svc.Recurring.GenerateTransactions(r.Context(), time.Now(), actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]int{"created": created})
}

// ── Bank statements ──────────────────────────────────────────────────────────

// importStatement accepts a multipart upload with a "file" part, or a raw CSV
// body when the content type is not multipart.
func (h *Handler) importStatement(w http.ResponseWriter, r *http.Request) {
	accountID := queryInt(r, "account_id")
	if accountID == nil {
		writeError(w, r, "account_id query parameter is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	sourceName := r.URL.Query().Get("source")

	body := r.Body
	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		body = file
		if sourceName == "" {
			sourceName = header.Filename
		}
	}
	if sourceName == "" {
		sourceName = "upload.csv"
	}

	imp, lines, err := h.svc.Statements.ImportCSV(r.Context(), *accountID, sourceName, body, actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"import": imp, "lines": lines})
}

func (h *Handler) getStatementImport(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	imp, lines, err := h.svc.Statements.GetImport(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"import": imp, "lines": lines})
}

func (h *Handler) matchStatementLines(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	matched, err := h.svc.Statements.MatchLines(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]int{"matched": matched})
}

func (h *Handler) bookStatementLine(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var body struct {
		Category string `json:"category"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	txn, err := h.svc.Statements.CreateTransactionFromLine(r.Context(), id,
		core.TransactionCategory(body.Category), actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, txn)
}
