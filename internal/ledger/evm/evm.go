// Package evm implements the ledger capability against an ERC20 mint
// contract over JSON-RPC.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pythonsolidity/mindmint/internal/ledger"
)

const mintABI = `[
 {"type":"function","name":"mintTokens","inputs":[{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
 {"type":"function","name":"totalSupply","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"MAX_SUPPLY","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

const receiptPollInterval = 2 * time.Second

type Client struct {
	eth      *ethclient.Client
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int

	// nonce assignment is serialized so concurrent submits never reuse one
	nonceMu   sync.Mutex
	nextNonce uint64
	nonceInit bool
}

func Dial(rpcURL, keyHex string, contract common.Address, chainID *big.Int) (*Client, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	parsed, err := abi.JSON(strings.NewReader(mintABI))
	if err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	return &Client{
		eth:      eth,
		abi:      parsed,
		contract: contract,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
	}, nil
}

func (c *Client) Signer() common.Address { return c.from }

func (c *Client) ReadSupply(ctx context.Context) (ledger.Supply, error) {
	total, err := c.callUint(ctx, "totalSupply")
	if err != nil {
		return ledger.Supply{}, fmt.Errorf("%w: totalSupply: %v", ledger.ErrUnavailable, err)
	}
	max, err := c.callUint(ctx, "MAX_SUPPLY")
	if err != nil {
		return ledger.Supply{}, fmt.Errorf("%w: MAX_SUPPLY: %v", ledger.ErrUnavailable, err)
	}
	return ledger.Supply{TotalIssued: total, MaxSupply: max}, nil
}

func (c *Client) callUint(ctx context.Context, method string) (*big.Int, error) {
	data, err := c.abi.Pack(method)
	if err != nil {
		return nil, err
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	vals, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, err
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected return type %T", method, vals[0])
	}
	return v, nil
}

func (c *Client) EstimateResources(ctx context.Context, amount *big.Int, recipient common.Address) (ledger.FeeBudget, error) {
	data, err := c.abi.Pack("mintTokens", amount, recipient)
	if err != nil {
		return ledger.FeeBudget{}, err
	}
	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &c.contract, Data: data})
	if err != nil {
		// the node simulates the call; a revert here is a deterministic
		// rejection, not a transient fault
		if isRevert(err) {
			return ledger.FeeBudget{}, fmt.Errorf("%w: %v", ledger.ErrWouldReject, err)
		}
		return ledger.FeeBudget{}, fmt.Errorf("%w: estimate gas: %v", ledger.ErrUnavailable, err)
	}
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return ledger.FeeBudget{}, fmt.Errorf("%w: gas price: %v", ledger.ErrUnavailable, err)
	}
	return ledger.FeeBudget{GasLimit: gas, GasPrice: price}, nil
}

func (c *Client) Submit(ctx context.Context, amount *big.Int, recipient common.Address, budget ledger.FeeBudget) (ledger.PendingHandle, error) {
	data, err := c.abi.Pack("mintTokens", amount, recipient)
	if err != nil {
		return ledger.PendingHandle{}, err
	}
	nonce, err := c.claimNonce(ctx)
	if err != nil {
		return ledger.PendingHandle{}, fmt.Errorf("%w: nonce: %v", ledger.ErrUnavailable, err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Gas:      budget.GasLimit,
		GasPrice: budget.GasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return ledger.PendingHandle{}, fmt.Errorf("%w: sign: %v", ledger.ErrRejected, err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		c.dropNonce(nonce)
		if strings.Contains(err.Error(), "insufficient funds") {
			return ledger.PendingHandle{}, fmt.Errorf("%w: %v", ledger.ErrInsufficientFunds, err)
		}
		return ledger.PendingHandle{}, fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}
	return ledger.PendingHandle{TxHash: signed.Hash(), Amount: amount}, nil
}

// claimNonce hands out strictly increasing nonces, seeding the counter from
// the node's pending view on first use.
func (c *Client) claimNonce(ctx context.Context) (uint64, error) {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	if !c.nonceInit {
		n, err := c.eth.PendingNonceAt(ctx, c.from)
		if err != nil {
			return 0, err
		}
		c.nextNonce = n
		c.nonceInit = true
	}
	n := c.nextNonce
	c.nextNonce++
	return n, nil
}

// dropNonce returns an unused nonce after a failed send, but only if nothing
// claimed a later one in the meantime.
func (c *Client) dropNonce(nonce uint64) {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	if c.nonceInit && c.nextNonce == nonce+1 {
		c.nextNonce = nonce
	}
}

func (c *Client) AwaitConfirmation(ctx context.Context, handle ledger.PendingHandle, timeout time.Duration) (ledger.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		rcpt, err := c.eth.TransactionReceipt(waitCtx, handle.TxHash)
		if err == nil {
			if rcpt.Status != types.ReceiptStatusSuccessful {
				return ledger.Receipt{}, fmt.Errorf("%w: tx %s", ledger.ErrReverted, handle.TxHash.Hex())
			}
			return ledger.Receipt{
				TxHash:       handle.TxHash,
				AmountIssued: handle.Amount,
				GasUsed:      rcpt.GasUsed,
			}, nil
		}
		// NotFound means not yet mined; anything else is treated as
		// transient and retried until the deadline
		select {
		case <-waitCtx.Done():
			return ledger.Receipt{}, confirmWaitErr(ctx.Err(), handle.TxHash)
		case <-ticker.C:
		}
	}
}

// confirmWaitErr classifies why the wait ended: caller cancellation
// propagates as-is, deadline expiry becomes the timeout sentinel.
func confirmWaitErr(callerErr error, txHash common.Hash) error {
	if callerErr != nil {
		return fmt.Errorf("await confirmation for tx %s: %w", txHash.Hex(), callerErr)
	}
	return fmt.Errorf("%w: tx %s", ledger.ErrConfirmationTimeout, txHash.Hex())
}

// ConfirmationStatus is a single non-blocking receipt check, used by the
// reconciliation sweep. confirmed reports a successful execution; a missing
// receipt is (false, nil).
func (c *Client) ConfirmationStatus(ctx context.Context, txHash common.Hash) (confirmed bool, gasUsed uint64, err error) {
	rcpt, err := c.eth.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	return rcpt.Status == types.ReceiptStatusSuccessful, rcpt.GasUsed, nil
}

func isRevert(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "always failing") || strings.Contains(msg, "revert")
}
