package provider

import (
	"context"
	"errors"
)

// Provider names, also the values of the settings syncProvider field.
// "all" and "none" are coordinator policies, not providers.
const (
	NameChunked = "chunked"
	NameDrive   = "drive"
	NameGist    = "gist"
	NameBitable = "bitable"
)

var (
	// ErrQuotaExceeded is reported by the chunked provider when the payload
	// would not fit the backend quota. Nothing is written in that case.
	ErrQuotaExceeded = errors.New("sync quota exceeded")
	// ErrAuth marks a missing or rejected credential on push.
	ErrAuth = errors.New("sync auth failed")
	// ErrNotConfigured marks a provider whose settings are absent.
	ErrNotConfigured = errors.New("provider not configured")
)

// Provider is a remote sync backend. Push stores the payload, replacing any
// previous one; failures propagate so the coordinator can react. Pull
// returns the stored payload, or (nil, nil) when the remote holds no data.
// Transport and auth failures on pull also resolve to absent, because the
// coordinator treats "remote unreachable" the same as "remote empty".
//
// Payloads are opaque bytes: the encrypted blob for most providers, the
// plaintext JSON document for the bitable provider.
type Provider interface {
	Name() string
	Push(ctx context.Context, payload []byte) error
	Pull(ctx context.Context) ([]byte, error)
}
