package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

// SeedTenancy creates the full landlord -> property -> unit -> tenant -> lease
// chain one invoice hangs off, returning the ids tests need.
type Tenancy struct {
	LandlordID uuid.UUID
	PropertyID uuid.UUID
	UnitID     uuid.UUID
	TenantID   uuid.UUID
	LeaseID    uuid.UUID
}

func SeedTenancy(t *testing.T, db *sql.DB) Tenancy {
	t.Helper()

	tn := Tenancy{
		LandlordID: uuid.New(),
		PropertyID: uuid.New(),
		UnitID:     uuid.New(),
		TenantID:   uuid.New(),
		LeaseID:    uuid.New(),
	}

	mustExec(t, db,
		`INSERT INTO landlords (id, name, phone, email) VALUES ($1, $2, $3, $4)`,
		tn.LandlordID, "Wanjiku Estates", "254722000001", "wanjiku@example.co.ke",
	)
	mustExec(t, db,
		`INSERT INTO tenants (id, name, phone, email) VALUES ($1, $2, $3, $4)`,
		tn.TenantID, "Otieno Omondi", "254712345678", "otieno@example.co.ke",
	)
	mustExec(t, db,
		`INSERT INTO properties (id, landlord_id, name) VALUES ($1, $2, $3)`,
		tn.PropertyID, tn.LandlordID, "Kilimani Court",
	)
	mustExec(t, db,
		`INSERT INTO units (id, property_id, label) VALUES ($1, $2, $3)`,
		tn.UnitID, tn.PropertyID, "A4",
	)
	mustExec(t, db,
		`INSERT INTO leases (id, unit_id, tenant_id, rent_amount, starts_on)
		 VALUES ($1, $2, $3, $4, $5)`,
		tn.LeaseID, tn.UnitID, tn.TenantID, int64(1_000_000), time.Now().UTC().AddDate(0, -6, 0),
	)

	return tn
}

func SeedInvoice(t *testing.T, db *sql.DB, tn Tenancy, amount int64, dueDate time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	mustExec(t, db,
		`INSERT INTO invoices (id, lease_id, tenant_id, landlord_id, amount, status, due_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, tn.LeaseID, tn.TenantID, tn.LandlordID, amount, domain.InvoiceStatusPending, dueDate,
	)
	return id
}

func SeedTransaction(t *testing.T, db *sql.DB, txn *domain.Transaction) {
	t.Helper()

	mustExec(t, db,
		`INSERT INTO transactions (
			id, provider, landlord_id, tenant_id, invoice_id,
			correlation_id, provider_ref, phone, amount, currency, status,
			created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		txn.ID, txn.Provider, txn.LandlordID, txn.TenantID, txn.InvoiceID,
		txn.CorrelationID, txn.ProviderRef, txn.Phone, txn.Amount, txn.Currency, txn.Status,
		txn.CreatedAt, txn.UpdatedAt, txn.CompletedAt,
	)
}

func SeedCredential(t *testing.T, db *sql.DB, landlordID uuid.UUID, provider domain.Provider, keyEnc, secretEnc, passkeyEnc string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	mustExec(t, db,
		`INSERT INTO provider_credentials (
			id, landlord_id, provider, environment,
			consumer_key_enc, consumer_secret_enc, passkey_enc, shortcode, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true)`,
		id, landlordID, provider, domain.EnvironmentSandbox,
		keyEnc, secretEnc, passkeyEnc, "174379",
	)
	return id
}

func GetInvoiceStatus(t *testing.T, db *sql.DB, invoiceID uuid.UUID) domain.InvoiceStatus {
	t.Helper()

	var status domain.InvoiceStatus
	if err := db.QueryRow(`SELECT status FROM invoices WHERE id = $1`, invoiceID).Scan(&status); err != nil {
		t.Fatalf("get invoice status %s: %v", invoiceID, err)
	}
	return status
}

func GetTransactionStatus(t *testing.T, db *sql.DB, transactionID uuid.UUID) domain.TransactionStatus {
	t.Helper()

	var status domain.TransactionStatus
	if err := db.QueryRow(`SELECT status FROM transactions WHERE id = $1`, transactionID).Scan(&status); err != nil {
		t.Fatalf("get transaction status %s: %v", transactionID, err)
	}
	return status
}

func CountAllocations(t *testing.T, db *sql.DB, invoiceID uuid.UUID) int {
	t.Helper()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM payment_allocations WHERE invoice_id = $1`, invoiceID).Scan(&count); err != nil {
		t.Fatalf("count allocations for invoice %s: %v", invoiceID, err)
	}
	return count
}

func SumAllocations(t *testing.T, db *sql.DB, invoiceID uuid.UUID) int64 {
	t.Helper()

	var total int64
	if err := db.QueryRow(
		`SELECT COALESCE(SUM(amount), 0) FROM payment_allocations WHERE invoice_id = $1`, invoiceID,
	).Scan(&total); err != nil {
		t.Fatalf("sum allocations for invoice %s: %v", invoiceID, err)
	}
	return total
}

func GetCreditBalance(t *testing.T, db *sql.DB, tenantID uuid.UUID) int64 {
	t.Helper()

	var total int64
	if err := db.QueryRow(
		`SELECT COALESCE(SUM(balance), 0) FROM tenant_credits WHERE tenant_id = $1`, tenantID,
	).Scan(&total); err != nil {
		t.Fatalf("get credit balance for tenant %s: %v", tenantID, err)
	}
	return total
}

func CountAuditEvents(t *testing.T, db *sql.DB, kind domain.AuditKind) int {
	t.Helper()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM audit_events WHERE kind = $1`, kind).Scan(&count); err != nil {
		t.Fatalf("count audit events %s: %v", kind, err)
	}
	return count
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec fixture: %v", err)
	}
}
