package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nyumba-labs/nyumba-payments/internal/config"
	"github.com/nyumba-labs/nyumba-payments/internal/domain"
	"github.com/nyumba-labs/nyumba-payments/internal/handler"
	"github.com/nyumba-labs/nyumba-payments/internal/logging"
	"github.com/nyumba-labs/nyumba-payments/internal/middleware"
	"github.com/nyumba-labs/nyumba-payments/internal/provider"
	"github.com/nyumba-labs/nyumba-payments/internal/repository"
	"github.com/nyumba-labs/nyumba-payments/internal/service"
	"github.com/nyumba-labs/nyumba-payments/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("nyumba-payments", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cipher, err := vault.NewCipher(cfg.VaultKey)
	if err != nil {
		slog.Error("invalid vault key", "error", err)
		os.Exit(1)
	}

	transactions := repository.NewTransactionRepository(db)
	invoices := repository.NewInvoiceRepository(db)
	allocations := repository.NewAllocationRepository(db)
	credits := repository.NewCreditRepository(db)
	credentials := repository.NewCredentialRepository(db)
	audits := repository.NewAuditRepository(db)

	secrets := vault.New(credentials, cipher)

	var signer *provider.Signer
	if cfg.JengaPrivateKeyPEM != "" {
		signer, err = provider.NewSigner(cfg.JengaPrivateKeyPEM)
		if err != nil {
			slog.Error("invalid jenga signing key", "error", err)
			os.Exit(1)
		}
	}

	timeout := time.Duration(cfg.ProviderTimeoutS) * time.Second
	adapters := provider.NewRegistry(
		provider.NewMpesa(cfg.MpesaBaseURL, cfg.CallbackBaseURL, timeout),
		provider.NewJenga(cfg.JengaBaseURL, cfg.CallbackBaseURL, signer, timeout),
		provider.NewKCB(cfg.KCBBaseURL, cfg.CallbackBaseURL, timeout),
	)

	engine := service.NewAllocationEngine(invoices, allocations, credits)
	reconciler := service.NewReconciler(db, engine, transactions, invoices, allocations, credits)
	payments := service.NewPaymentService(secrets, adapters, transactions, invoices)
	ingress := service.NewIngressService(db, transactions, engine, reconciler, audits, service.NopNotifier{}, logger)

	allowlists, err := buildAllowlists(cfg)
	if err != nil {
		slog.Error("invalid callback allow-list", "error", err)
		os.Exit(1)
	}

	paymentHandler := handler.NewPaymentHandler(payments)
	credentialHandler := handler.NewCredentialHandler(secrets)
	reconcileHandler := handler.NewReconcileHandler(reconciler)
	auditHandler := handler.NewAuditHandler(audits)
	webhookHandler := handler.NewWebhookHandler(adapters, ingress, allowlists)
	healthHandler := handler.NewHealthHandler(db)

	authed := middleware.Auth(cfg.JWTSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	mux.HandleFunc("POST /webhooks/{provider}", webhookHandler.Receive)

	mux.Handle("POST /api/v1/payments/push", authed(http.HandlerFunc(paymentHandler.Push)))
	mux.Handle("GET /api/v1/payments/{id}", authed(http.HandlerFunc(paymentHandler.Get)))
	mux.Handle("PUT /api/v1/landlords/{landlord_id}/providers/{provider}", authed(http.HandlerFunc(credentialHandler.Save)))
	mux.Handle("DELETE /api/v1/landlords/{landlord_id}/providers/{provider}", authed(http.HandlerFunc(credentialHandler.Deactivate)))
	mux.Handle("POST /api/v1/tenants/{tenant_id}/reconcile", authed(http.HandlerFunc(reconcileHandler.Trigger)))
	mux.Handle("GET /api/v1/audit-events", authed(http.HandlerFunc(auditHandler.List)))

	root := middleware.Recovery(middleware.Logging(middleware.Tracing(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func buildAllowlists(cfg *config.Config) (map[domain.Provider][]netip.Prefix, error) {
	lists := map[domain.Provider]string{
		domain.ProviderMpesa: cfg.MpesaAllowedCIDRs,
		domain.ProviderJenga: cfg.JengaAllowedCIDRs,
		domain.ProviderKCB:   cfg.KCBAllowedCIDRs,
	}

	out := make(map[domain.Provider][]netip.Prefix, len(lists))
	for p, csv := range lists {
		prefixes, err := handler.ParseAllowlist(csv)
		if err != nil {
			return nil, fmt.Errorf("buildAllowlists: %s: %w", p, err)
		}
		out[p] = prefixes
	}
	return out, nil
}
