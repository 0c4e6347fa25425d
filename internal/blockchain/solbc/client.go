// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	rpcpool "github.com/rovshanmuradov/launch-sniper/internal/blockchain/solbc/rpc"
)

var ErrAccountNotFound = errors.New("account not found")

// IsAccountNotFoundError reports whether err means the account does not exist.
func IsAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAccountNotFound) || errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find account")
}

// Client is the chain client used by the engine.
type Client struct {
	pool   *rpcpool.Pool
	wsURL  string
	logger *zap.Logger
}

// NewClient creates a client over a pool of RPC nodes.
func NewClient(pool *rpcpool.Pool, wsURL string, logger *zap.Logger) *Client {
	return &Client{
		pool:   pool,
		wsURL:  wsURL,
		logger: logger.Named("solbc-client"),
	}
}

// LatestBlockhash returns the latest finalized blockhash.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash
	err := c.pool.Execute(ctx, func(ctx context.Context, node *rpc.Client) error {
		result, err := node.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		hash = result.Value.Blockhash
		return nil
	})
	if err != nil {
		c.logger.Error("LatestBlockhash error", zap.Error(err))
		return solana.Hash{}, err
	}
	return hash, nil
}

// Slot returns the current confirmed slot.
func (c *Client) Slot(ctx context.Context) (uint64, error) {
	var slot uint64
	err := c.pool.Execute(ctx, func(ctx context.Context, node *rpc.Client) error {
		var err error
		slot, err = node.GetSlot(ctx, rpc.CommitmentConfirmed)
		return err
	})
	return slot, err
}

// AccountData returns the raw data of an account. Missing accounts yield
// ErrAccountNotFound.
func (c *Client) AccountData(ctx context.Context, pubkey solana.PublicKey) ([]byte, error) {
	var data []byte
	err := c.pool.Execute(ctx, func(ctx context.Context, node *rpc.Client) error {
		info, err := node.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: rpc.CommitmentConfirmed,
		})
		if err != nil {
			if IsAccountNotFoundError(err) {
				return &rpcpool.Permanent{Err: ErrAccountNotFound}
			}
			return err
		}
		if info == nil || info.Value == nil {
			return &rpcpool.Permanent{Err: ErrAccountNotFound}
		}
		data = info.Value.Data.GetBinary()
		return nil
	})
	if err != nil {
		c.logger.Debug("AccountData error",
			zap.String("pubkey", pubkey.String()),
			zap.Error(err))
		return nil, err
	}
	return data, nil
}

// TokenBalance returns the raw balance of the owner's associated token account
// for mint. A missing account reports found=false without error.
func (c *Client) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, bool, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, false, err
	}

	var raw string
	err = c.pool.Execute(ctx, func(ctx context.Context, node *rpc.Client) error {
		res, err := node.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
		if err != nil {
			if IsAccountNotFoundError(err) {
				return &rpcpool.Permanent{Err: ErrAccountNotFound}
			}
			return err
		}
		if res == nil || res.Value == nil {
			return &rpcpool.Permanent{Err: ErrAccountNotFound}
		}
		raw = res.Value.Amount
		return nil
	})
	if errors.Is(err, ErrAccountNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("token balance %s: %w", ata, err)
	}

	amount, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse token amount %q: %w", raw, err)
	}
	return amount, amount > 0, nil
}

// SubmitRaw broadcasts a signed transaction through the RPC nodes.
func (c *Client) SubmitRaw(ctx context.Context, raw []byte) (solana.Signature, error) {
	var sig solana.Signature
	err := c.pool.Execute(ctx, func(ctx context.Context, node *rpc.Client) error {
		var err error
		sig, err = node.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
			SkipPreflight:       true,
			PreflightCommitment: rpc.CommitmentProcessed,
		})
		return err
	})
	if err != nil {
		c.logger.Error("SubmitRaw error", zap.Error(err))
		return solana.Signature{}, err
	}
	return sig, nil
}

// Transaction fetches a confirmed transaction including v0 lookups.
func (c *Client) Transaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	maxVersion := uint64(0)
	var result *rpc.GetTransactionResult
	err := c.pool.Execute(ctx, func(ctx context.Context, node *rpc.Client) error {
		var err error
		result, err = node.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		if err == nil && result == nil {
			return ErrAccountNotFound
		}
		return err
	})
	return result, err
}
