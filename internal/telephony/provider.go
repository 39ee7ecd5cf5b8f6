package telephony

import "context"

// PlacedCall is the provider's view of a freshly created outbound call.
type PlacedCall struct {
	ProviderCallSID string
	Status          string
}

// Provider abstracts the upstream telephony carrier.
type Provider interface {
	Name() string

	// PlaceCall starts an outbound call. answerURL receives the voice
	// webhook when the callee picks up; statusURL receives lifecycle
	// status callbacks.
	PlaceCall(ctx context.Context, to, from, answerURL, statusURL string) (PlacedCall, error)

	HealthCheck(ctx context.Context) error
}
