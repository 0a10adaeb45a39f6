package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
	"github.com/nyumba-labs/nyumba-payments/internal/repository"
	"github.com/nyumba-labs/nyumba-payments/internal/testutil"
)

func newReconciler(t *testing.T) (*Reconciler, *ingressFixture) {
	t.Helper()
	f := newIngressFixture(t)

	transactions := repository.NewTransactionRepository(f.db)
	invoices := repository.NewInvoiceRepository(f.db)
	allocations := repository.NewAllocationRepository(f.db)
	credits := repository.NewCreditRepository(f.db)
	engine := NewAllocationEngine(invoices, allocations, credits)

	return NewReconciler(f.db, engine, transactions, invoices, allocations, credits), f
}

func seedCompletedUnallocated(t *testing.T, f *ingressFixture, tn testutil.Tenancy, amount int64) *domain.Transaction {
	t.Helper()

	now := time.Now().UTC()
	ref := "ws_CO_" + uuid.NewString()[:8]
	txn := &domain.Transaction{
		ID:            uuid.New(),
		Provider:      domain.ProviderMpesa,
		LandlordID:    &tn.LandlordID,
		TenantID:      &tn.TenantID,
		CorrelationID: uuid.NewString(),
		ProviderRef:   &ref,
		Phone:         "254712345678",
		Amount:        amount,
		Currency:      domain.CurrencyKES,
		Status:        domain.TransactionStatusCompleted,
		CreatedAt:     now,
		UpdatedAt:     now,
		CompletedAt:   &now,
	}
	testutil.SeedTransaction(t, f.db, txn)
	return txn
}

func TestReconcileTenant_AppliesUnallocatedPayment(t *testing.T) {
	r, f := newReconciler(t)
	ctx := context.Background()

	tn := testutil.SeedTenancy(t, f.db)
	invoiceID := testutil.SeedInvoice(t, f.db, tn, 1_000_000, time.Now().UTC())
	seedCompletedUnallocated(t, f, tn, 1_000_000)

	require.NoError(t, r.ReconcileTenant(ctx, tn.TenantID))

	assert.Equal(t, domain.InvoiceStatusPaid, testutil.GetInvoiceStatus(t, f.db, invoiceID))
	assert.Equal(t, int64(1_000_000), testutil.SumAllocations(t, f.db, invoiceID))
}

func TestReconcileTenant_OldestInvoiceFirst(t *testing.T) {
	r, f := newReconciler(t)
	ctx := context.Background()

	tn := testutil.SeedTenancy(t, f.db)
	now := time.Now().UTC()
	older := testutil.SeedInvoice(t, f.db, tn, 600_000, now.AddDate(0, -2, 0))
	newer := testutil.SeedInvoice(t, f.db, tn, 600_000, now.AddDate(0, -1, 0))
	seedCompletedUnallocated(t, f, tn, 900_000)

	require.NoError(t, r.ReconcileTenant(ctx, tn.TenantID))

	assert.Equal(t, domain.InvoiceStatusPaid, testutil.GetInvoiceStatus(t, f.db, older))
	assert.Equal(t, int64(600_000), testutil.SumAllocations(t, f.db, older))
	assert.Equal(t, domain.InvoiceStatusPartiallyPaid, testutil.GetInvoiceStatus(t, f.db, newer))
	assert.Equal(t, int64(300_000), testutil.SumAllocations(t, f.db, newer))
}

func TestReconcileTenant_RemainderBecomesCredit(t *testing.T) {
	r, f := newReconciler(t)
	ctx := context.Background()

	tn := testutil.SeedTenancy(t, f.db)
	invoiceID := testutil.SeedInvoice(t, f.db, tn, 400_000, time.Now().UTC())
	seedCompletedUnallocated(t, f, tn, 1_000_000)

	require.NoError(t, r.ReconcileTenant(ctx, tn.TenantID))

	assert.Equal(t, domain.InvoiceStatusPaid, testutil.GetInvoiceStatus(t, f.db, invoiceID))
	assert.Equal(t, int64(600_000), testutil.GetCreditBalance(t, f.db, tn.TenantID))
}

func TestReconcileTenant_ConsumesCredits(t *testing.T) {
	r, f := newReconciler(t)
	ctx := context.Background()

	tn := testutil.SeedTenancy(t, f.db)

	// Overpay the first invoice through ingress so a credit exists.
	first := testutil.SeedInvoice(t, f.db, tn, 1_000_000, time.Now().UTC().AddDate(0, -1, 0))
	txn := seedPendingTransaction(t, f.db, tn, first, 1_300_000)
	require.NoError(t, f.ingress.HandleCallback(ctx, successCallback(txn, 1_300_000), "196.201.214.10"))
	require.Equal(t, int64(300_000), testutil.GetCreditBalance(t, f.db, tn.TenantID))

	second := testutil.SeedInvoice(t, f.db, tn, 200_000, time.Now().UTC())
	require.NoError(t, r.ReconcileTenant(ctx, tn.TenantID))

	assert.Equal(t, domain.InvoiceStatusPaid, testutil.GetInvoiceStatus(t, f.db, second))
	assert.Equal(t, int64(200_000), testutil.SumAllocations(t, f.db, second))
	assert.Equal(t, int64(100_000), testutil.GetCreditBalance(t, f.db, tn.TenantID))

	// Credit applications are auditable allocation rows, not silent balance edits.
	var creditAllocs int
	require.NoError(t, f.db.QueryRow(
		`SELECT COUNT(*) FROM payment_allocations WHERE invoice_id = $1 AND credit_id IS NOT NULL`, second,
	).Scan(&creditAllocs))
	assert.Equal(t, 1, creditAllocs)
}

func TestReconcileTenant_Idempotent(t *testing.T) {
	r, f := newReconciler(t)
	ctx := context.Background()

	tn := testutil.SeedTenancy(t, f.db)
	invoiceID := testutil.SeedInvoice(t, f.db, tn, 1_000_000, time.Now().UTC())
	seedCompletedUnallocated(t, f, tn, 1_000_000)

	require.NoError(t, r.ReconcileTenant(ctx, tn.TenantID))
	require.NoError(t, r.ReconcileTenant(ctx, tn.TenantID))
	require.NoError(t, r.ReconcileTenant(ctx, tn.TenantID))

	assert.Equal(t, 1, testutil.CountAllocations(t, f.db, invoiceID))
	assert.Equal(t, int64(1_000_000), testutil.SumAllocations(t, f.db, invoiceID))
}

func TestReconcileTenant_NothingToDo(t *testing.T) {
	r, _ := newReconciler(t)

	require.NoError(t, r.ReconcileTenant(context.Background(), uuid.New()))
}
