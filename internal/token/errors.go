package token

import "errors"

// Pipeline errors are surfaced to the caller with their specific kind: the
// caller must present differentiated messaging and must not retry blindly.
var (
	// ErrNotConnected means no session or live signer was available; no
	// network call was attempted.
	ErrNotConnected = errors.New("no wallet connected")

	// ErrAgentUnavailable means the signing agent was missing or unreachable.
	ErrAgentUnavailable = errors.New("signing agent unavailable")

	// ErrSigningRejected means the user declined the request in the agent.
	ErrSigningRejected = errors.New("signing rejected")

	// ErrSimulationFailed means the dry run failed or was inconclusive.
	ErrSimulationFailed = errors.New("simulation failed")

	// ErrSubmissionRejected means the network refused the envelope outright.
	ErrSubmissionRejected = errors.New("submission rejected")

	// ErrTransactionFailed means confirmation polling ended in a terminal
	// non-success status, or the confirmation window elapsed.
	ErrTransactionFailed = errors.New("transaction failed")
)
