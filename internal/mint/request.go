package mint

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MintPayload is the wire shape of POST /mint. Amount rides as json.Number so
// token amounts beyond int64 survive decoding.
type MintPayload struct {
	Amount  json.Number `json:"amount"`
	Address string      `json:"address"`
}

// IssuanceRequest is a validated, immutable mint instruction.
type IssuanceRequest struct {
	RequestID string
	Amount    *big.Int
	Recipient common.Address
}

// ValidateRequest turns raw payload into an IssuanceRequest or fails with
// ErrInvalidInput. Pure: no ledger access.
func ValidateRequest(requestID string, p MintPayload) (IssuanceRequest, error) {
	amount, ok := new(big.Int).SetString(p.Amount.String(), 10)
	if !ok {
		return IssuanceRequest{}, fmt.Errorf("%w: amount %q is not an integer", ErrInvalidInput, p.Amount.String())
	}
	if amount.Sign() <= 0 {
		return IssuanceRequest{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	// uint256 is the contract's native width
	if amount.BitLen() > 256 {
		return IssuanceRequest{}, fmt.Errorf("%w: amount exceeds uint256", ErrInvalidInput)
	}
	if !common.IsHexAddress(p.Address) {
		return IssuanceRequest{}, fmt.Errorf("%w: %q is not a valid address", ErrInvalidInput, p.Address)
	}
	return IssuanceRequest{
		RequestID: requestID,
		Amount:    amount,
		Recipient: common.HexToAddress(p.Address),
	}, nil
}
