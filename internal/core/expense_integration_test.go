package core_test

import (
	"context"
	"testing"

	"studioflow/internal/core"

	"github.com/shopspring/decimal"
)

func TestExpenseClaimService_Lifecycle(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	cashbook := core.NewCashbook(pool)
	svc := core.NewExpenseClaimService(pool, cashbook)
	accountID, approver := 1, 1

	claim, err := svc.SubmitClaim(ctx, core.ExpenseClaimInput{
		EmployeeID:  1,
		ExpenseDate: testDate(t, "2025-06-02"),
		Amount:      decimal.NewFromInt(2400),
		Category:    "travel",
		Description: "Site visit fuel",
	})
	if err != nil {
		t.Fatalf("SubmitClaim failed: %v", err)
	}
	if claim.Status != core.ClaimSubmitted {
		t.Fatalf("Expected new claim to be submitted, got %s", claim.Status)
	}

	// Paying an unapproved claim is refused.
	_, err = svc.PayClaim(ctx, claim.ID, core.PaymentInput{
		PaymentDate: testDate(t, "2025-06-03"),
		Amount:      claim.Amount,
	}, &approver)
	if err == nil {
		t.Error("Expected payment of a submitted claim to be refused")
	}

	claim, err = svc.ApproveClaim(ctx, claim.ID, approver)
	if err != nil {
		t.Fatalf("ApproveClaim failed: %v", err)
	}
	if claim.Status != core.ClaimApproved {
		t.Errorf("Expected approved, got %s", claim.Status)
	}
	if claim.ApprovedBy == nil || *claim.ApprovedBy != approver {
		t.Errorf("Expected approver recorded, got %v", claim.ApprovedBy)
	}

	// Approving twice is refused.
	if _, err := svc.ApproveClaim(ctx, claim.ID, approver); err == nil {
		t.Error("Expected second approval to be refused")
	}

	cp, err := svc.PayClaim(ctx, claim.ID, core.PaymentInput{
		PaymentDate: testDate(t, "2025-06-05"),
		Amount:      claim.Amount,
		AccountID:   &accountID,
	}, &approver)
	if err != nil {
		t.Fatalf("PayClaim failed: %v", err)
	}

	claim, err = svc.GetClaim(ctx, claim.ID)
	if err != nil {
		t.Fatalf("GetClaim failed: %v", err)
	}
	if claim.Status != core.ClaimPaid {
		t.Errorf("Expected paid after reimbursement, got %s", claim.Status)
	}

	entry, err := cashbook.FindByOrigin(ctx, core.LedgerOrigin{Kind: core.OriginExpenseClaimPayment, ID: cp.ID})
	if err != nil {
		t.Fatalf("FindByOrigin failed: %v", err)
	}
	if entry == nil || !entry.Debit.Equal(decimal.NewFromInt(2400)) {
		t.Errorf("Expected cashbook debit 2400 for the reimbursement, got %+v", entry)
	}
	if entry.PersonID == nil || *entry.PersonID != 1 {
		t.Errorf("Expected employee referenced on the entry, got %v", entry.PersonID)
	}
}

func TestExpenseClaimService_Reject(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	svc := core.NewExpenseClaimService(pool, core.NewCashbook(pool))

	claim, err := svc.SubmitClaim(ctx, core.ExpenseClaimInput{
		EmployeeID:  1,
		ExpenseDate: testDate(t, "2025-06-02"),
		Amount:      decimal.NewFromInt(999),
	})
	if err != nil {
		t.Fatalf("SubmitClaim failed: %v", err)
	}

	claim, err = svc.RejectClaim(ctx, claim.ID, 1)
	if err != nil {
		t.Fatalf("RejectClaim failed: %v", err)
	}
	if claim.Status != core.ClaimRejected {
		t.Errorf("Expected rejected, got %s", claim.Status)
	}

	// A rejected claim can be neither approved nor paid.
	if _, err := svc.ApproveClaim(ctx, claim.ID, 1); err == nil {
		t.Error("Expected approval of rejected claim to be refused")
	}
	if _, err := svc.PayClaim(ctx, claim.ID, core.PaymentInput{
		PaymentDate: testDate(t, "2025-06-03"),
		Amount:      claim.Amount,
	}, nil); err == nil {
		t.Error("Expected payment of rejected claim to be refused")
	}
}
