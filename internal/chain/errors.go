package chain

import "errors"

var (
	// ErrWalletUnavailable: the RPC provider cannot be reached.
	ErrWalletUnavailable = errors.New("wallet provider unavailable")
	// ErrNoAccounts: the wallet holds no signing keys.
	ErrNoAccounts = errors.New("wallet has no accounts")
	// ErrUnsupportedNetwork: the provider's chain id is not in the supported set.
	ErrUnsupportedNetwork = errors.New("unsupported network")
	// ErrUserRejected: the requested account is not held by this wallet, so
	// the signing request is refused.
	ErrUserRejected = errors.New("signing rejected for unknown account")
	// ErrConfirmationTimeout: no receipt observed within the bounded wait.
	// The transaction may still land; callers must reconcile, never resubmit.
	ErrConfirmationTimeout = errors.New("transaction confirmation timeout")
)
