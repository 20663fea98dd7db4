package rpc

// Transaction status values reported by sendTransaction and getTransaction.
const (
	StatusNotFound      = "NOT_FOUND"
	StatusPending       = "PENDING"
	StatusSuccess       = "SUCCESS"
	StatusFailed        = "FAILED"
	StatusError         = "ERROR"
	StatusDuplicate     = "DUPLICATE"
	StatusTryAgainLater = "TRY_AGAIN_LATER"
)

// HostResult is the per-invocation outcome of a simulation.
type HostResult struct {
	Auth []string `json:"auth"`
	XDR  string   `json:"xdr"`
}

// SimulateResult is the response of simulateTransaction. A non-empty Error
// marks the simulation as failed or inconclusive.
type SimulateResult struct {
	TransactionData string       `json:"transactionData"`
	MinResourceFee  string       `json:"minResourceFee"`
	Results         []HostResult `json:"results"`
	LatestLedger    int64        `json:"latestLedger"`
	Error           string       `json:"error,omitempty"`
}

// SendResult is the response of sendTransaction.
type SendResult struct {
	Status         string `json:"status"`
	Hash           string `json:"hash"`
	LatestLedger   int64  `json:"latestLedger"`
	ErrorResultXDR string `json:"errorResultXdr,omitempty"`
}

// GetResult is the response of getTransaction.
type GetResult struct {
	Status       string `json:"status"`
	ResultXDR    string `json:"resultXdr,omitempty"`
	EnvelopeXDR  string `json:"envelopeXdr,omitempty"`
	LatestLedger int64  `json:"latestLedger"`
}
