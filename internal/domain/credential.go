package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProviderCredential is the stored form of a landlord's provider
// configuration. Secret fields hold ciphertext envelopes; plaintext exists
// only inside a vault.Decrypt call.
type ProviderCredential struct {
	ID                uuid.UUID
	LandlordID        uuid.UUID
	Provider          Provider
	Environment       Environment
	ConsumerKeyEnc    string
	ConsumerSecretEnc string
	PasskeyEnc        string
	Shortcode         string
	TillNumber        string
	Active            bool
	Verified          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Secrets is the transient plaintext view handed to a provider adapter.
// It is never persisted and never serialized back to a caller.
type Secrets struct {
	ConsumerKey    string
	ConsumerSecret string
	Passkey        string
	Shortcode      string
	TillNumber     string
	Environment    Environment
}

// SafeConfig is the only credential shape ever returned to API callers.
type SafeConfig struct {
	Provider    Provider    `json:"provider"`
	Environment Environment `json:"environment"`
	Shortcode   string      `json:"shortcode,omitempty"`
	TillNumber  string      `json:"till_number,omitempty"`
	Active      bool        `json:"active"`
	Verified    bool        `json:"verified"`
}
