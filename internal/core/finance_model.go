package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoiceSent    InvoiceStatus = "sent"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
)

// Invoice is a client invoice billed against a project or, before conversion,
// a lead. All money fields on the struct are stored values; the derived
// amounts (subtotal, outstanding, ...) live in InvoiceTotals and are always
// recomputed, never persisted.
type Invoice struct {
	ID              int             `json:"id"`
	ProjectID       *int            `json:"project_id,omitempty"`
	LeadID          *int            `json:"lead_id,omitempty"`
	InvoiceNumber   *string         `json:"invoice_number,omitempty"`
	InvoiceDate     time.Time       `json:"invoice_date"`
	DueDate         time.Time       `json:"due_date"`
	Amount          decimal.Decimal `json:"amount"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Status          InvoiceStatus   `json:"status"`
	Description     string          `json:"description"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	Lines       []InvoiceLine             `json:"lines"`
	Payments    []Payment                 `json:"payments,omitempty"`
	Allocations []ClientAdvanceAllocation `json:"allocations,omitempty"`
}

// DisplayNumber returns the stored invoice number, or a generated INV-<id>
// fallback for invoices created before numbering was introduced.
func (inv *Invoice) DisplayNumber() string {
	if inv.InvoiceNumber != nil && *inv.InvoiceNumber != "" {
		return *inv.InvoiceNumber
	}
	return "INV-" + padNumber(inv.ID, 4)
}

type InvoiceLine struct {
	ID          int             `json:"id"`
	InvoiceID   int             `json:"invoice_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// LineTotal returns quantity x unit price rounded to 2 decimal places.
func (l InvoiceLine) LineTotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice).Round(2)
}

type Payment struct {
	ID          int             `json:"id"`
	InvoiceID   int             `json:"invoice_id"`
	PaymentDate time.Time       `json:"payment_date"`
	Amount      decimal.Decimal `json:"amount"`
	AccountID   *int            `json:"account_id,omitempty"`
	Method      string          `json:"method"`
	Reference   string          `json:"reference"`
	Notes       string          `json:"notes"`
	RecordedBy  *int            `json:"recorded_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Receipt is generated 1:1 from a Payment. Amount, method and reference are
// read off the payment; the invoice/project/client references are denormalized
// so receipts survive later edits.
type Receipt struct {
	ID            int       `json:"id"`
	ReceiptNumber string    `json:"receipt_number"`
	ReceiptDate   time.Time `json:"receipt_date"`
	PaymentID     int       `json:"payment_id"`
	InvoiceID     int       `json:"invoice_id"`
	ProjectID     *int      `json:"project_id,omitempty"`
	ClientID      *int      `json:"client_id,omitempty"`
	Notes         string    `json:"notes"`
	GeneratedBy   *int      `json:"generated_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type BillStatus string

const (
	BillUnpaid  BillStatus = "unpaid"
	BillPartial BillStatus = "partial"
	BillPaid    BillStatus = "paid"
	BillOverdue BillStatus = "overdue"
)

// Bill is a vendor invoice. Flat amount only, no lines.
type Bill struct {
	ID          int             `json:"id"`
	VendorID    int             `json:"vendor_id"`
	VendorName  string          `json:"vendor_name"`
	ProjectID   *int            `json:"project_id,omitempty"`
	BillNumber  string          `json:"bill_number"`
	BillDate    time.Time       `json:"bill_date"`
	DueDate     time.Time       `json:"due_date"`
	Amount      decimal.Decimal `json:"amount"`
	Status      BillStatus      `json:"status"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	CreatedBy   *int            `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`

	// AmountPaid and Outstanding are derived from bill_payments at load time.
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type BillPayment struct {
	ID          int             `json:"id"`
	BillID      int             `json:"bill_id"`
	PaymentDate time.Time       `json:"payment_date"`
	Amount      decimal.Decimal `json:"amount"`
	AccountID   *int            `json:"account_id,omitempty"`
	Method      string          `json:"method"`
	Reference   string          `json:"reference"`
	Notes       string          `json:"notes"`
	RecordedBy  *int            `json:"recorded_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ClientAdvance is an unattached client payment (retainer) that can later be
// allocated against invoices.
type ClientAdvance struct {
	ID           int             `json:"id"`
	ClientID     int             `json:"client_id"`
	ClientName   string          `json:"client_name"`
	ProjectID    *int            `json:"project_id,omitempty"`
	ReceivedDate time.Time       `json:"received_date"`
	Amount       decimal.Decimal `json:"amount"`
	AccountID    *int            `json:"account_id,omitempty"`
	Method       string          `json:"method"`
	Reference    string          `json:"reference"`
	Notes        string          `json:"notes"`
	RecordedBy   *int            `json:"recorded_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`

	// Derived from allocations at load time.
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	AvailableAmount decimal.Decimal `json:"available_amount"`
}

type ClientAdvanceAllocation struct {
	ID          int             `json:"id"`
	AdvanceID   int             `json:"advance_id"`
	InvoiceID   int             `json:"invoice_id"`
	Amount      decimal.Decimal `json:"amount"`
	AllocatedBy *int            `json:"allocated_by,omitempty"`
	Notes       string          `json:"notes"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ClaimStatus string

const (
	ClaimSubmitted ClaimStatus = "submitted"
	ClaimApproved  ClaimStatus = "approved"
	ClaimRejected  ClaimStatus = "rejected"
	ClaimPaid      ClaimStatus = "paid"
)

type ExpenseClaim struct {
	ID          int             `json:"id"`
	EmployeeID  int             `json:"employee_id"`
	ProjectID   *int            `json:"project_id,omitempty"`
	ExpenseDate time.Time       `json:"expense_date"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Status      ClaimStatus     `json:"status"`
	ApprovedBy  *int            `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time      `json:"approved_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ExpenseClaimPayment struct {
	ID          int             `json:"id"`
	ClaimID     int             `json:"claim_id"`
	PaymentDate time.Time       `json:"payment_date"`
	Amount      decimal.Decimal `json:"amount"`
	AccountID   *int            `json:"account_id,omitempty"`
	Method      string          `json:"method"`
	Reference   string          `json:"reference"`
	RecordedBy  *int            `json:"recorded_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type TransactionCategory string

const (
	CategoryClientPayment TransactionCategory = "client_payment"
	CategoryClientAdvance TransactionCategory = "client_advance"
	CategoryVendorPayment TransactionCategory = "vendor_payment"
	CategoryReimbursement TransactionCategory = "reimbursement"
	CategoryRecurring     TransactionCategory = "recurring"
	CategorySalary        TransactionCategory = "salary"
	CategoryTransfer      TransactionCategory = "transfer"
	CategoryOtherIncome   TransactionCategory = "other_income"
	CategoryOtherExpense  TransactionCategory = "other_expense"
	CategoryMisc          TransactionCategory = "misc"
)

// Transaction is one cashbook row. Exactly one of debit/credit is non-zero,
// and at most one origin reference is set.
type Transaction struct {
	ID          int                 `json:"id"`
	Date        time.Time           `json:"date"`
	Description string              `json:"description"`
	Category    TransactionCategory `json:"category"`
	Subcategory string              `json:"subcategory"`
	Debit       decimal.Decimal     `json:"debit"`
	Credit      decimal.Decimal     `json:"credit"`
	AccountID   *int                `json:"account_id,omitempty"`

	PaymentID             *int `json:"payment_id,omitempty"`
	BillPaymentID         *int `json:"bill_payment_id,omitempty"`
	ClientAdvanceID       *int `json:"client_advance_id,omitempty"`
	ExpenseClaimPaymentID *int `json:"expense_claim_payment_id,omitempty"`
	RecurringRuleID       *int `json:"recurring_rule_id,omitempty"`

	ProjectID  *int      `json:"project_id,omitempty"`
	ClientID   *int      `json:"client_id,omitempty"`
	VendorID   *int      `json:"vendor_id,omitempty"`
	PersonID   *int      `json:"person_id,omitempty"`
	RecordedBy *int      `json:"recorded_by,omitempty"`
	Remarks    string    `json:"remarks"`
	CreatedAt  time.Time `json:"created_at"`
}

type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// RecurringRule adds one cashbook transaction per month. next_run_date is the
// cursor of the first unprocessed period; it only ever moves forward.
// day_of_month is capped at 28 so every month has a valid run day.
type RecurringRule struct {
	ID          int                 `json:"id"`
	Name        string              `json:"name"`
	IsActive    bool                `json:"is_active"`
	Direction   Direction           `json:"direction"`
	Category    TransactionCategory `json:"category"`
	Description string              `json:"description"`
	Amount      decimal.Decimal     `json:"amount"`
	AccountID   *int                `json:"account_id,omitempty"`
	ProjectID   *int                `json:"project_id,omitempty"`
	VendorID    *int                `json:"vendor_id,omitempty"`
	DayOfMonth  int                 `json:"day_of_month"`
	NextRunDate time.Time           `json:"next_run_date"`
	CreatedAt   time.Time           `json:"created_at"`
}

type BankStatementImport struct {
	ID         int       `json:"id"`
	AccountID  int       `json:"account_id"`
	SourceName string    `json:"source_name"`
	UploadedBy *int      `json:"uploaded_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type BankStatementLine struct {
	ID                   int              `json:"id"`
	StatementID          int              `json:"statement_id"`
	LineDate             time.Time        `json:"line_date"`
	Description          string           `json:"description"`
	Amount               decimal.Decimal  `json:"amount"`
	Balance              *decimal.Decimal `json:"balance,omitempty"`
	MatchedTransactionID *int             `json:"matched_transaction_id,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
}
