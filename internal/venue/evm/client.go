/*

This file contains the signing RPC client used by every EVM venue.

Transactions are signed locally and submitted once. The client then waits for the receipt; it never resubmits, since a
transaction that appears lost may still be mined. Callers bound the wait with the context.

*/

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
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/types"
)

const (
	defaultPollInterval = 2 * time.Second
	gasMarginPercent    = 20
)

// Backend defines the subset of the Ethereum RPC used by the venues.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Dial opens an RPC connection to an Ethereum node.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, errors.New("evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

type Client struct {
	backend      Backend
	key          *ecdsa.PrivateKey
	from         common.Address
	chainID      *big.Int
	limiter      *rate.Limiter
	pollInterval time.Duration

	sendMu sync.Mutex // one pending nonce at a time
	logger zerolog.Logger
}

// NewClient builds a signing client. rps bounds RPC requests per second; zero disables throttling.
func NewClient(backend Backend, privateKeyHex string, chainID uint64, rps float64) (*Client, error) {
	if backend == nil {
		return nil, errors.New("evm backend cannot be nil")
	}
	if chainID == 0 {
		return nil, errors.New("chain id must be set")
	}
	key, err := gethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	c := &Client{
		backend:      backend,
		key:          key,
		from:         gethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:      new(big.Int).SetUint64(chainID),
		limiter:      limiter,
		pollInterval: defaultPollInterval,
		logger:       logger.GetForComponent("evm_client"),
	}
	c.logger.Info().Str("account", c.from.Hex()).Uint64("chain_id", chainID).Msg("EVM client ready")
	return c, nil
}

// From returns the custody account.
func (c *Client) From() common.Address { return c.from }

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// call runs a read-only contract call against the latest block.
func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: call %s: %v", types.ErrVenueQuery, to.Hex(), err)
	}
	return out, nil
}

// send signs and submits a transaction, then waits for a successful receipt.
func (c *Client) send(ctx context.Context, to common.Address, data []byte) (*gethtypes.Receipt, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	msg := ethereum.CallMsg{From: c.from, To: &to, Data: data}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: estimate gas on %s: %v", types.ErrVenueCall, to.Hex(), err)
	}
	gas += gas * gasMarginPercent / 100

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("%w: pending nonce: %v", types.ErrVenueCall, err)
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas tip: %v", types.ErrVenueCall, err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch head: %v", types.ErrVenueCall, err)
	}
	if head == nil || head.BaseFee == nil {
		return nil, fmt.Errorf("%w: head has no base fee", types.ErrVenueCall)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     new(big.Int),
		Data:      data,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%w: send transaction: %v", types.ErrVenueCall, err)
	}
	c.logger.Info().
		Str("tx", signed.Hash().Hex()).
		Str("to", to.Hex()).
		Uint64("nonce", nonce).
		Uint64("gas", gas).
		Msg("Transaction submitted")

	receipt, err := c.awaitReceipt(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: transaction %s reverted", types.ErrVenueCall, signed.Hash().Hex())
	}
	return receipt, nil
}

// awaitReceipt polls until the transaction is mined. A canceled context leaves
// the outcome unknown.
func (c *Client) awaitReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		if err := c.wait(ctx); err != nil {
			return nil, errors.Join(types.ErrTimeout, fmt.Errorf("transaction %s: %w", hash.Hex(), err))
		}
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			c.logger.Warn().Err(err).Str("tx", hash.Hex()).Msg("Receipt lookup failed, polling again")
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(types.ErrTimeout, fmt.Errorf("transaction %s not mined: %w", hash.Hex(), ctx.Err()))
		case <-ticker.C:
		}
	}
}

// transferred sums the ERC-20 Transfer logs of token into the custody account.
func (c *Client) transferred(receipt *gethtypes.Receipt, token common.Address) *big.Int {
	total := new(big.Int)
	for _, log := range receipt.Logs {
		if log == nil || log.Address != token || len(log.Topics) < 3 {
			continue
		}
		if log.Topics[0] != transferEventSignature {
			continue
		}
		if common.BytesToAddress(log.Topics[2].Bytes()) != c.from {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(log.Data))
	}
	return total
}

// staked sums the reward pool Staked events for the custody account.
func (c *Client) staked(receipt *gethtypes.Receipt, pool common.Address) *big.Int {
	total := new(big.Int)
	for _, log := range receipt.Logs {
		if log == nil || log.Address != pool || len(log.Topics) < 2 {
			continue
		}
		if log.Topics[0] != stakedEventSignature {
			continue
		}
		if common.BytesToAddress(log.Topics[1].Bytes()) != c.from {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(log.Data))
	}
	return total
}
