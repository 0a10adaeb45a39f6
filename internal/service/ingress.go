package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
	"github.com/nyumba-labs/nyumba-payments/internal/logging"
)

// amountToleranceCents absorbs rounding in provider-reported amounts; any
// larger discrepancy is treated as a mismatch and audited.
const amountToleranceCents = 1

type ingressTransactionRepo interface {
	Create(ctx context.Context, txn *domain.Transaction) error
	FindByCorrelation(ctx context.Context, p domain.Provider, ref string) (*domain.Transaction, error)
	Complete(ctx context.Context, tx *sql.Tx, id uuid.UUID, providerRef, receipt *string, resultCode, resultDesc string) (bool, error)
	Fail(ctx context.Context, tx *sql.Tx, id uuid.UUID, providerRef *string, resultCode, resultDesc string) (bool, error)
}

type auditWriter interface {
	Create(ctx context.Context, e *domain.AuditEvent) error
}

// Notifier is the outward hand-off after a successful allocation. Failures
// are logged, never propagated; notification is not part of the money path.
type Notifier interface {
	PaymentReceived(ctx context.Context, txn *domain.Transaction)
}

type NopNotifier struct{}

func (NopNotifier) PaymentReceived(context.Context, *domain.Transaction) {}

// IngressService applies validated callbacks to the transaction ledger. The
// webhook contract means every internal failure here is absorbed: the
// handler acknowledges the provider regardless, and the failure is recorded
// as an audit event instead.
type IngressService struct {
	db           *sql.DB
	transactions ingressTransactionRepo
	engine       *AllocationEngine
	reconciler   *Reconciler
	audit        auditWriter
	notifier     Notifier
	logger       *slog.Logger
}

func NewIngressService(
	db *sql.DB,
	transactions ingressTransactionRepo,
	engine *AllocationEngine,
	reconciler *Reconciler,
	audit auditWriter,
	notifier Notifier,
	logger *slog.Logger,
) *IngressService {
	return &IngressService{
		db:           db,
		transactions: transactions,
		engine:       engine,
		reconciler:   reconciler,
		audit:        audit,
		notifier:     notifier,
		logger:       logger,
	}
}

// HandleCallback matches a parsed callback to its transaction and drives the
// state machine. The returned error is for logging only; callers acknowledge
// the provider with 200 either way.
func (s *IngressService) HandleCallback(ctx context.Context, res *domain.CallbackResult, sourceAddr string) error {
	log := logging.FromContext(ctx)

	txn, err := s.lookup(ctx, res)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.recordOrphan(ctx, res, sourceAddr)
		}
		return fmt.Errorf("HandleCallback: %w", err)
	}

	if txn.Status.IsTerminal() {
		log.Info("duplicate callback for settled transaction",
			"transaction_id", txn.ID,
			"provider", res.Provider,
			"status", txn.Status,
		)
		return nil
	}

	if !res.Success {
		return s.fail(ctx, txn, res)
	}

	if res.Amount == nil || abs(*res.Amount-txn.Amount) > amountToleranceCents {
		return s.rejectAmount(ctx, txn, res, sourceAddr)
	}

	return s.complete(ctx, txn, res)
}

func (s *IngressService) lookup(ctx context.Context, res *domain.CallbackResult) (*domain.Transaction, error) {
	if res.ProviderRef != "" {
		txn, err := s.transactions.FindByCorrelation(ctx, res.Provider, res.ProviderRef)
		if err == nil {
			return txn, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if res.CorrelationID != "" && res.CorrelationID != res.ProviderRef {
		return s.transactions.FindByCorrelation(ctx, res.Provider, res.CorrelationID)
	}
	return nil, fmt.Errorf("lookup: %w", domain.ErrNotFound)
}

// recordOrphan stores a callback that arrived before (or without) its
// initiation record. There is not enough context to allocate safely, so the
// row is kept for manual reconciliation and an audit event is written.
func (s *IngressService) recordOrphan(ctx context.Context, res *domain.CallbackResult, sourceAddr string) error {
	log := logging.FromContext(ctx)

	status := domain.TransactionStatusFailed
	var completedAt *time.Time
	now := time.Now().UTC()
	if res.Success {
		status = domain.TransactionStatusCompleted
		completedAt = &now
	}

	correlationID := res.CorrelationID
	if correlationID == "" {
		correlationID = res.ProviderRef
	}

	txn := &domain.Transaction{
		ID:            uuid.New(),
		Provider:      res.Provider,
		CorrelationID: correlationID,
		Phone:         stringVal(res.Phone),
		Amount:        int64Val(res.Amount),
		Currency:      domain.CurrencyKES,
		Status:        status,
		ResultCode:    &res.ResultCode,
		ResultDesc:    &res.ResultDesc,
		Receipt:       res.Receipt,
		CreatedAt:     now,
		UpdatedAt:     now,
		CompletedAt:   completedAt,
	}
	if res.ProviderRef != "" {
		txn.ProviderRef = &res.ProviderRef
	}

	if err := s.transactions.Create(ctx, txn); err != nil {
		if errors.Is(err, domain.ErrDuplicateTransaction) {
			log.Info("orphan callback raced initiation write, retrying as duplicate", "provider", res.Provider)
			return nil
		}
		return fmt.Errorf("recordOrphan: %w", err)
	}

	log.Warn("callback without matching transaction recorded for manual reconciliation",
		"transaction_id", txn.ID,
		"provider", res.Provider,
		"provider_ref", res.ProviderRef,
	)

	s.writeAudit(ctx, domain.AuditKindOrphanCallback, res, sourceAddr, map[string]any{
		"recorded_transaction_id": txn.ID,
		"status":                  status,
	})
	return nil
}

func (s *IngressService) rejectAmount(ctx context.Context, txn *domain.Transaction, res *domain.CallbackResult, sourceAddr string) error {
	log := logging.FromContext(ctx)

	log.Warn("callback amount mismatch, transaction left pending",
		"transaction_id", txn.ID,
		"expected", txn.Amount,
		"reported", int64Val(res.Amount),
	)

	s.writeAudit(ctx, domain.AuditKindAmountMismatch, res, sourceAddr, map[string]any{
		"transaction_id":  txn.ID,
		"expected_amount": txn.Amount,
		"reported_amount": int64Val(res.Amount),
	})
	return fmt.Errorf("rejectAmount: %w", domain.ErrAmountMismatch)
}

// complete transitions the transaction and runs the allocation waterfall in
// one database transaction. The conditional update makes exactly one of any
// concurrent duplicate callbacks win; the loser commits nothing.
func (s *IngressService) complete(ctx context.Context, txn *domain.Transaction, res *domain.CallbackResult) error {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("complete: begin tx: %w", err)
	}
	defer tx.Rollback()

	var providerRef *string
	if res.ProviderRef != "" {
		providerRef = &res.ProviderRef
	}

	won, err := s.transactions.Complete(ctx, tx, txn.ID, providerRef, res.Receipt, res.ResultCode, res.ResultDesc)
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	if !won {
		log.Info("concurrent callback already settled transaction", "transaction_id", txn.ID)
		return nil
	}

	if err := s.engine.Allocate(ctx, tx, txn); err != nil {
		s.writeAudit(ctx, domain.AuditKindAllocationFailure, res, "", map[string]any{
			"transaction_id": txn.ID,
			"error":          err.Error(),
		})
		return fmt.Errorf("complete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("complete: commit: %w", err)
	}

	log.Info("transaction completed",
		"transaction_id", txn.ID,
		"provider", txn.Provider,
		"amount", txn.Amount,
		"receipt", stringVal(res.Receipt),
	)

	if txn.TenantID != nil {
		if err := s.reconciler.ReconcileTenant(ctx, *txn.TenantID); err != nil {
			log.Error("post-completion reconciliation failed", "tenant_id", *txn.TenantID, "error", err)
		}
	}

	s.notifier.PaymentReceived(ctx, txn)
	return nil
}

func (s *IngressService) fail(ctx context.Context, txn *domain.Transaction, res *domain.CallbackResult) error {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("fail: begin tx: %w", err)
	}
	defer tx.Rollback()

	var providerRef *string
	if res.ProviderRef != "" {
		providerRef = &res.ProviderRef
	}

	won, err := s.transactions.Fail(ctx, tx, txn.ID, providerRef, res.ResultCode, res.ResultDesc)
	if err != nil {
		return fmt.Errorf("fail: %w", err)
	}
	if !won {
		log.Info("concurrent callback already settled transaction", "transaction_id", txn.ID)
		return nil
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("fail: commit: %w", err)
	}

	log.Info("transaction failed",
		"transaction_id", txn.ID,
		"provider", txn.Provider,
		"result_code", res.ResultCode,
		"result_desc", res.ResultDesc,
	)
	return nil
}

// WriteAudit records a swallowed ingress failure for operator review.
func (s *IngressService) WriteAudit(ctx context.Context, kind domain.AuditKind, p domain.Provider, correlationID, sourceAddr string, detail map[string]any) {
	payload, _ := json.Marshal(detail)
	event := &domain.AuditEvent{
		ID:            uuid.New(),
		Kind:          kind,
		Provider:      p,
		CorrelationID: correlationID,
		SourceAddr:    sourceAddr,
		Detail:        payload,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.audit.Create(ctx, event); err != nil {
		s.logger.Error("failed to write audit event", "kind", kind, "error", err)
	}
}

func (s *IngressService) writeAudit(ctx context.Context, kind domain.AuditKind, res *domain.CallbackResult, sourceAddr string, detail map[string]any) {
	correlationID := res.CorrelationID
	if correlationID == "" {
		correlationID = res.ProviderRef
	}
	s.WriteAudit(ctx, kind, res.Provider, correlationID, sourceAddr, detail)
}

func stringVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func int64Val(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
