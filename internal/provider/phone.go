package provider

import (
	"fmt"
	"strings"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

// NormalizeMSISDN converts any accepted Kenyan phone format into the
// canonical international form the providers expect: 254 followed by nine
// digits, no plus sign, no separators. Accepted inputs: 0712345678,
// 712345678, 254712345678, +254712345678, with optional spaces or dashes.
func NormalizeMSISDN(phone string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))

	cleaned = strings.TrimPrefix(cleaned, "+")

	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("NormalizeMSISDN: %q: %w", phone, domain.ErrInvalidPhone)
		}
	}

	switch {
	case len(cleaned) == 12 && strings.HasPrefix(cleaned, "254"):
		// already international
	case len(cleaned) == 10 && strings.HasPrefix(cleaned, "0"):
		cleaned = "254" + cleaned[1:]
	case len(cleaned) == 9:
		cleaned = "254" + cleaned
	default:
		return "", fmt.Errorf("NormalizeMSISDN: %q: %w", phone, domain.ErrInvalidPhone)
	}

	// Subscriber numbers start with 7 (mobile) or 1 (newer ranges).
	if cleaned[3] != '7' && cleaned[3] != '1' {
		return "", fmt.Errorf("NormalizeMSISDN: %q: %w", phone, domain.ErrInvalidPhone)
	}

	return cleaned, nil
}
