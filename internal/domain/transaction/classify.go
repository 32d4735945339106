package transaction

// Daraja result codes observed on STK push callbacks and status queries.
// This table is the single place raw codes are interpreted.
const (
	CodeSuccess           = 0
	CodeInsufficientFunds = 1
	CodeUserCancelled     = 1032
	CodeProviderTimeout   = 1037
)

// Classify maps a gateway result code onto a domain status. A nil code means
// the customer has not responded yet, so the record stays PENDING. Any code
// outside the known table is FAILED.
func Classify(code *int) Status {
	if code == nil {
		return StatusPending
	}
	switch *code {
	case CodeSuccess:
		return StatusSuccess
	case CodeUserCancelled:
		return StatusCancelled
	case CodeInsufficientFunds:
		return StatusInsufficientFunds
	case CodeProviderTimeout:
		return StatusTimeout
	default:
		return StatusFailed
	}
}
