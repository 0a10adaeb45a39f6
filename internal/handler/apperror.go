package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount         = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrInvalidPhone          = &AppError{http.StatusBadRequest, "INVALID_PHONE", "Phone number is not a valid Kenyan MSISDN"}
	ErrInvalidProvider       = &AppError{http.StatusBadRequest, "INVALID_PROVIDER", "Unknown payment provider"}
	ErrProviderNotConfigured = &AppError{http.StatusUnprocessableEntity, "PROVIDER_NOT_CONFIGURED", "Landlord has no active credentials for this provider"}
	ErrProviderAuth          = &AppError{http.StatusBadGateway, "PROVIDER_AUTH_FAILED", "Provider rejected the configured credentials"}
	ErrProviderTimeout       = &AppError{http.StatusGatewayTimeout, "PROVIDER_TIMEOUT", "Provider did not respond in time"}
	ErrProviderRejected      = &AppError{http.StatusBadGateway, "PROVIDER_REJECTED", "Provider rejected the payment request"}
	ErrDuplicateTransaction  = &AppError{http.StatusConflict, "DUPLICATE_TRANSACTION", "A transaction with this reference already exists"}
	ErrInvalidSigningKey     = &AppError{http.StatusUnprocessableEntity, "INVALID_SIGNING_KEY", "Request signing key is missing or unparsable"}
)
