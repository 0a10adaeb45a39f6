package domain

type Provider string

const (
	ProviderMpesa Provider = "mpesa"
	ProviderJenga Provider = "jenga"
	ProviderKCB   Provider = "kcb"
)

func (p Provider) IsValid() bool {
	switch p {
	case ProviderMpesa, ProviderJenga, ProviderKCB:
		return true
	}
	return false
}

type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

func (e Environment) IsValid() bool {
	return e == EnvironmentSandbox || e == EnvironmentProduction
}

// CurrencyKES is the only settlement currency; providers reject anything else.
const CurrencyKES = "KES"
