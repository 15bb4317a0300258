package entities

import "errors"

// Error kinds surfaced by the public operations. Provider-local errors live
// in the bridge package; everything here crosses a service boundary.
var (
	// ErrValidation rejects malformed input before storage or network I/O.
	ErrValidation = errors.New("validation error")

	// ErrDuplicateWallet means the derived address is already managed.
	ErrDuplicateWallet = errors.New("wallet already exists")

	// ErrWalletNotFound means no wallet exists for the given address.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrDecryptionFailure means the stored key blob could not be decrypted.
	// It is terminal for the wallet's operation and never retried: it
	// implies a wrong encryption secret or corrupted ciphertext.
	ErrDecryptionFailure = errors.New("private key decryption failed")

	// ErrInsufficientBalance aborts a transfer before any network call.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrChainUnreachable means a balance refresh could not reach the chain
	// RPC. Recoverable; the stale cached value is still served.
	ErrChainUnreachable = errors.New("chain unreachable")

	// ErrNoProviderAvailable means no bridge provider supports the route.
	ErrNoProviderAvailable = errors.New("no provider available for route")

	// ErrNoQuoteAvailable means every supported provider failed to quote.
	ErrNoQuoteAvailable = errors.New("no quote available")

	// ErrExecuting means a transfer is already in flight for the wallet.
	// The caller must reschedule, not block.
	ErrExecuting = errors.New("transfer already executing for wallet")
)

// ErrorKind maps an error to the kind string persisted on failed transfers.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNoProviderAvailable):
		return "no_provider_available"
	case errors.Is(err, ErrNoQuoteAvailable):
		return "no_quote_available"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrDecryptionFailure):
		return "decryption_failure"
	case errors.Is(err, ErrChainUnreachable):
		return "chain_unreachable"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	default:
		return "provider_error"
	}
}
