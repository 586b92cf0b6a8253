package mint

import (
	"errors"
	"math/big"
	"strings"

	"github.com/pythonsolidity/mindmint/internal/ledger"
)

// Pipeline-originated fault classes. Ledger-originated ones live in the
// ledger package; together they cover every failure a request can surface.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrCapacityExceeded = errors.New("exceeds max supply")
	ErrEstimationFailed = errors.New("fee estimation failed")
)

// ErrorKind is the closed taxonomy returned to callers. Raw ledger error
// text never becomes the primary signal; it rides along as detail.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "INVALID_INPUT"
	KindCapacityExceeded    ErrorKind = "CAPACITY_EXCEEDED"
	KindEstimationFailed    ErrorKind = "ESTIMATION_FAILED"
	KindSubmissionRejected  ErrorKind = "SUBMISSION_REJECTED"
	KindInsufficientFunds   ErrorKind = "INSUFFICIENT_FUNDS"
	KindReverted            ErrorKind = "REVERTED"
	KindConfirmationTimeout ErrorKind = "CONFIRMATION_TIMEOUT"
	KindLedgerUnavailable   ErrorKind = "LEDGER_UNAVAILABLE"
)

// Outcome is the terminal result of one request. Never mutated after
// construction.
type Outcome struct {
	Success      bool
	TxHash       string
	AmountIssued *big.Int
	GasUsed      uint64
	ErrorKind    ErrorKind
	Message      string
}

// Classify maps any pipeline or ledger error to its kind. Deterministic:
// the same error always yields the same kind.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrCapacityExceeded):
		return KindCapacityExceeded
	case errors.Is(err, ErrEstimationFailed), errors.Is(err, ledger.ErrWouldReject):
		return KindEstimationFailed
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ledger.ErrRejected):
		return KindSubmissionRejected
	case errors.Is(err, ledger.ErrReverted):
		return KindReverted
	case errors.Is(err, ledger.ErrConfirmationTimeout):
		return KindConfirmationTimeout
	default:
		return KindLedgerUnavailable
	}
}

// Message strings keep caller-facing behavior stable across ledger-client
// versions.
var kindMessages = map[ErrorKind]string{
	KindInvalidInput:        "invalid mint request",
	KindCapacityExceeded:    "Exceeds max supply",
	KindEstimationFailed:    "mint would be rejected by the contract",
	KindSubmissionRejected:  "submission rejected by the ledger",
	KindInsufficientFunds:   "gateway signer has insufficient funds",
	KindReverted:            "mint transaction reverted",
	KindConfirmationTimeout: "confirmation timed out",
	KindLedgerUnavailable:   "ledger unavailable",
}

func (k ErrorKind) Message() string {
	if m, ok := kindMessages[k]; ok {
		return m
	}
	return string(k)
}

// HTTPStatus splits the taxonomy into caller-fixable (400) and
// environmental (500) conditions.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidInput, KindCapacityExceeded, KindInsufficientFunds, KindEstimationFailed:
		return 400
	default:
		return 500
	}
}

// FailureOutcome builds the terminal value for a failed request. The error
// detail is appended only when it adds to the kind's stable message, so
// sentinel-prefixed errors don't render their text twice.
func FailureOutcome(err error) Outcome {
	kind := Classify(err)
	msg := kind.Message()
	if detail := err.Error(); strings.HasPrefix(strings.ToLower(detail), strings.ToLower(msg)) {
		msg = detail
	} else {
		msg = msg + ": " + detail
	}
	return Outcome{
		Success:   false,
		ErrorKind: kind,
		Message:   msg,
	}
}
