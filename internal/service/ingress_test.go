package service

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
	"github.com/nyumba-labs/nyumba-payments/internal/repository"
	"github.com/nyumba-labs/nyumba-payments/internal/testutil"
)

type capturingNotifier struct {
	mu       sync.Mutex
	received []uuid.UUID
}

func (n *capturingNotifier) PaymentReceived(_ context.Context, txn *domain.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.received = append(n.received, txn.ID)
}

type ingressFixture struct {
	db       *sql.DB
	ingress  *IngressService
	notifier *capturingNotifier
}

func newIngressFixture(t *testing.T) *ingressFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)

	transactions := repository.NewTransactionRepository(db)
	invoices := repository.NewInvoiceRepository(db)
	allocations := repository.NewAllocationRepository(db)
	credits := repository.NewCreditRepository(db)
	audits := repository.NewAuditRepository(db)

	engine := NewAllocationEngine(invoices, allocations, credits)
	reconciler := NewReconciler(db, engine, transactions, invoices, allocations, credits)
	notifier := &capturingNotifier{}
	ingress := NewIngressService(db, transactions, engine, reconciler, audits, notifier, slog.Default())

	return &ingressFixture{db: db, ingress: ingress, notifier: notifier}
}

func seedPendingTransaction(t *testing.T, db *sql.DB, tn testutil.Tenancy, invoiceID uuid.UUID, amount int64) *domain.Transaction {
	t.Helper()

	now := time.Now().UTC()
	ref := "ws_CO_" + uuid.NewString()[:8]
	txn := &domain.Transaction{
		ID:            uuid.New(),
		Provider:      domain.ProviderMpesa,
		LandlordID:    &tn.LandlordID,
		TenantID:      &tn.TenantID,
		InvoiceID:     &invoiceID,
		CorrelationID: uuid.NewString(),
		ProviderRef:   &ref,
		Phone:         "254712345678",
		Amount:        amount,
		Currency:      domain.CurrencyKES,
		Status:        domain.TransactionStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	testutil.SeedTransaction(t, db, txn)
	return txn
}

func successCallback(txn *domain.Transaction, amount int64) *domain.CallbackResult {
	receipt := "RKT" + txn.ID.String()[:8]
	return &domain.CallbackResult{
		Provider:    txn.Provider,
		ProviderRef: *txn.ProviderRef,
		Success:     true,
		ResultCode:  "0",
		ResultDesc:  "The service request is processed successfully.",
		Amount:      &amount,
		Receipt:     &receipt,
	}
}

func TestHandleCallback_ExactPayment(t *testing.T) {
	f := newIngressFixture(t)
	ctx := context.Background()

	tn := testutil.SeedTenancy(t, f.db)
	invoiceID := testutil.SeedInvoice(t, f.db, tn, 1_000_000, time.Now().UTC())
	txn := seedPendingTransaction(t, f.db, tn, invoiceID, 1_000_000)

	require.NoError(t, f.ingress.HandleCallback(ctx, successCallback(txn, 1_000_000), "196.201.214.10"))

	assert.Equal(t, domain.TransactionStatusCompleted, testutil.GetTransactionStatus(t, f.db, txn.ID))
	assert.Equal(t, domain.InvoiceStatusPaid, testutil.GetInvoiceStatus(t, f.db, invoiceID))
	assert.Equal(t, 1, testutil.CountAllocations(t, f.db, invoiceID))
	assert.Equal(t, int64(1_000_000), testutil.SumAllocations(t, f.db, invoiceID))
	assert.Equal(t, int64(0), testutil.GetCreditBalance(t, f.db, tn.TenantID))
	assert.Equal(t, []uuid.UUID{txn.ID}, f.notifier.received)
}

func TestHandleCallback_OverpaymentBecomesCredit(t *testing.T) {
	f := newIngressFixture(t)
	ctx := context.Background()

	tn := testutil.SeedTenancy(t, f.db)
	invoiceID := testutil.SeedInvoice(t, f.db, tn, 1_000_000, time.Now().UTC())
	txn := seedPendingTransaction(t, f.db, tn, invoiceID, 1_200_000)

	require.NoError(t, f.ingress.HandleCallback(ctx, successCallback(txn, 1_200_000), "196.201.214.10"))

	assert.Equal(t, domain.InvoiceStatusPaid, testutil.GetInvoiceStatus(t, f.db, invoiceID))
	assert.Equal(t, int64(1_000_000), testutil.SumAllocations(t, f.db, invoiceID))
	assert.Equal(t, int64(200_000), testutil.GetCreditBalance(t, f.db, tn.TenantID))
}

func TestHandleCallback_PartialPayment(t *testing.T) {
	f := newIngressFixture(t)
	ctx := context.Background()

	tn := testutil.SeedTenancy(t, f.db)
	invoiceID := testutil.SeedInvoice(t, f.db, tn, 1_000_000, time.Now().UTC())
	txn := seedPendingTransaction(t, f.db, tn, invoiceID, 600_000)

	require.NoError(t, f.ingress.HandleCallback(ctx, successCallback(txn, 600_000), "196.201.214.10"))

	assert.Equal(t, domain.InvoiceStatusPartiallyPaid, testutil.GetInvoiceStatus(t, f.db, invoiceID))
	assert.Equal(t, int64(600_000), testutil.SumAllocations(t, f.db, invoiceID))
	assert.Equal(t, int64(0), testutil.GetCreditBalance(t, f.db, tn.TenantID))
}

func TestHandleCallback_DuplicateIsIdempotent(t *testing.T) {
	f := newIngressFixture(t)
	ctx := context.Background()

	tn := testutil.SeedTenancy(t, f.db)
	invoiceID := testutil.SeedInvoice(t, f.db, tn, 1_000_000, time.Now().UTC())
	txn := seedPendingTransaction(t, f.db, tn, invoiceID, 1_000_000)

	cb := successCallback(txn, 1_000_000)
	require.NoError(t, f.ingress.HandleCallback(ctx, cb, "196.201.214.10"))
	require.NoError(t, f.ingress.HandleCallback(ctx, cb, "196.201.214.10"))
	require.NoError(t, f.ingress.HandleCallback(ctx, cb, "196.201.214.10"))

	assert.Equal(t, 1, testutil.CountAllocations(t, f.db, invoiceID))
	assert.Equal(t, int64(1_000_000), testutil.SumAllocations(t, f.db, invoiceID))
	// Only the first delivery notifies.
	assert.Len(t, f.notifier.received, 1)
}

func TestHandleCallback_FailureResult(t *testing.T) {
	f := newIngressFixture(t)
	ctx := context.Background()

	tn := testutil.SeedTenancy(t, f.db)
	invoiceID := testutil.SeedInvoice(t, f.db, tn, 1_000_000, time.Now().UTC())
	txn := seedPendingTransaction(t, f.db, tn, invoiceID, 1_000_000)

	cb := &domain.CallbackResult{
		Provider:    txn.Provider,
		ProviderRef: *txn.ProviderRef,
		Success:     false,
		ResultCode:  "1032",
		ResultDesc:  "Request cancelled by user",
	}
	require.NoError(t, f.ingress.HandleCallback(ctx, cb, "196.201.214.10"))

	assert.Equal(t, domain.TransactionStatusFailed, testutil.GetTransactionStatus(t, f.db, txn.ID))
	assert.Equal(t, 0, testutil.CountAllocations(t, f.db, invoiceID))
	assert.Equal(t, domain.InvoiceStatusPending, testutil.GetInvoiceStatus(t, f.db, invoiceID))

	// A late success for a failed transaction must not resurrect it.
	require.NoError(t, f.ingress.HandleCallback(ctx, successCallback(txn, 1_000_000), "196.201.214.10"))
	assert.Equal(t, domain.TransactionStatusFailed, testutil.GetTransactionStatus(t, f.db, txn.ID))
	assert.Equal(t, 0, testutil.CountAllocations(t, f.db, invoiceID))
}

func TestHandleCallback_AmountMismatchLeavesPending(t *testing.T) {
	f := newIngressFixture(t)
	ctx := context.Background()

	tn := testutil.SeedTenancy(t, f.db)
	invoiceID := testutil.SeedInvoice(t, f.db, tn, 1_000_000, time.Now().UTC())
	txn := seedPendingTransaction(t, f.db, tn, invoiceID, 1_000_000)

	err := f.ingress.HandleCallback(ctx, successCallback(txn, 500_000), "196.201.214.10")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)

	assert.Equal(t, domain.TransactionStatusPending, testutil.GetTransactionStatus(t, f.db, txn.ID))
	assert.Equal(t, 0, testutil.CountAllocations(t, f.db, invoiceID))
	assert.Equal(t, 1, testutil.CountAuditEvents(t, f.db, domain.AuditKindAmountMismatch))
}

func TestHandleCallback_ToleratesOneCentRounding(t *testing.T) {
	f := newIngressFixture(t)
	ctx := context.Background()

	tn := testutil.SeedTenancy(t, f.db)
	invoiceID := testutil.SeedInvoice(t, f.db, tn, 1_000_000, time.Now().UTC())
	txn := seedPendingTransaction(t, f.db, tn, invoiceID, 1_000_000)

	require.NoError(t, f.ingress.HandleCallback(ctx, successCallback(txn, 999_999), "196.201.214.10"))
	assert.Equal(t, domain.TransactionStatusCompleted, testutil.GetTransactionStatus(t, f.db, txn.ID))
}

func TestHandleCallback_OrphanRecorded(t *testing.T) {
	f := newIngressFixture(t)
	ctx := context.Background()

	amount := int64(750_000)
	phone := "254712345678"
	cb := &domain.CallbackResult{
		Provider:    domain.ProviderMpesa,
		ProviderRef: "ws_CO_orphan",
		Success:     true,
		ResultCode:  "0",
		ResultDesc:  "Processed",
		Amount:      &amount,
		Phone:       &phone,
	}

	require.NoError(t, f.ingress.HandleCallback(ctx, cb, "196.201.214.10"))

	var status domain.TransactionStatus
	var landlordID uuid.NullUUID
	err := f.db.QueryRow(
		`SELECT status, landlord_id FROM transactions WHERE provider_ref = $1`, "ws_CO_orphan",
	).Scan(&status, &landlordID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, status)
	assert.False(t, landlordID.Valid)

	assert.Equal(t, 1, testutil.CountAuditEvents(t, f.db, domain.AuditKindOrphanCallback))
	// Without initiation context nothing is allocated.
	assert.Empty(t, f.notifier.received)
}
