package domain

// CallbackResult is the provider-agnostic form every callback variant parses
// into before touching any state. Amount is in KES cents and only set on
// success, as are Receipt and Phone.
type CallbackResult struct {
	Provider      Provider
	CorrelationID string
	ProviderRef   string
	Success       bool
	ResultCode    string
	ResultDesc    string
	Amount        *int64
	Receipt       *string
	Phone         *string
}
