package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	// VaultKey is the instance-wide AES-256 key for credential encryption,
	// base64 raw-std encoded, 32 bytes decoded.
	VaultKey string `env:"VAULT_KEY,required"`

	// CallbackBaseURL is the externally reachable root the providers POST
	// callbacks to, e.g. https://pay.example.co.ke.
	CallbackBaseURL string `env:"CALLBACK_BASE_URL,required"`

	MpesaBaseURL string `env:"MPESA_BASE_URL" envDefault:"https://api.safaricom.co.ke"`
	JengaBaseURL string `env:"JENGA_BASE_URL" envDefault:"https://api.finserve.africa"`
	KCBBaseURL   string `env:"KCB_BASE_URL" envDefault:"https://api.buni.kcbgroup.com"`

	// PEM-encoded RSA private key for Jenga, the only provider that signs
	// push requests.
	JengaPrivateKeyPEM string `env:"JENGA_PRIVATE_KEY_PEM"`

	// Comma-separated CIDR allow-lists for callback origins.
	MpesaAllowedCIDRs string `env:"MPESA_ALLOWED_CIDRS" envDefault:"196.201.214.0/24,196.201.213.0/24"`
	JengaAllowedCIDRs string `env:"JENGA_ALLOWED_CIDRS" envDefault:"41.220.112.0/22"`
	KCBAllowedCIDRs   string `env:"KCB_ALLOWED_CIDRS" envDefault:"212.22.160.0/19"`

	ProviderTimeoutS int `env:"PROVIDER_TIMEOUT_S" envDefault:"30"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
