// Package jito submits transactions through a Jito block engine with a tip.
package jito

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/wallet"
)

const DefaultBlockEngineURL = "https://mainnet.block-engine.jito.wtf"

var (
	ErrRelayRejected = errors.New("relay rejected transaction")
	ErrNoSignature   = errors.New("relay returned no signature")
	ErrNoTipAccounts = errors.New("relay returned no tip accounts")
)

// BlockhashSource provides the recent blockhash a transaction is bound to.
type BlockhashSource interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// RawSender broadcasts signed transactions over RPC.
type RawSender interface {
	SubmitRaw(ctx context.Context, raw []byte) (solana.Signature, error)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// MirrorToRPC additionally broadcasts the same signed transaction through RPC.
	MirrorToRPC bool
}

// Client is a block engine client. It never retries a submission.
type Client struct {
	baseURL   string
	http      *http.Client
	blockhash BlockhashSource
	mirror    RawSender
	logger    *zap.Logger
}

func NewClient(cfg Config, blockhash BlockhashSource, rpc RawSender, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBlockEngineURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      &http.Client{Timeout: cfg.Timeout},
		blockhash: blockhash,
		logger:    logger.Named("jito"),
	}
	if cfg.MirrorToRPC {
		c.mirror = rpc
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse[T any] struct {
	Result T         `json:"result"`
	Error  *rpcError `json:"error"`
}

func call[T any](ctx context.Context, c *Client, path, method string, params []any) (T, error) {
	var zero T
	body, err := sonic.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return zero, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return zero, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return zero, fmt.Errorf("%s: read body: %w", method, err)
	}
	if resp.StatusCode/100 != 2 {
		return zero, fmt.Errorf("%w: %s status %d: %s", ErrRelayRejected, method, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out rpcResponse[T]
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("%s: malformed response: %w", method, err)
	}
	if out.Error != nil {
		return zero, fmt.Errorf("%w: %s: %s (%d)", ErrRelayRejected, method, out.Error.Message, out.Error.Code)
	}
	return out.Result, nil
}

// TipAccount returns one of the current tip accounts of the block engine.
func (c *Client) TipAccount(ctx context.Context) (solana.PublicKey, error) {
	accounts, err := call[[]string](ctx, c, "/api/v1/bundles", "getTipAccounts", []any{})
	if err != nil {
		return solana.PublicKey{}, err
	}
	if len(accounts) == 0 {
		return solana.PublicKey{}, ErrNoTipAccounts
	}
	pick := accounts[rand.IntN(len(accounts))]
	return solana.PublicKeyFromBase58(pick)
}

// Submit appends a tip transfer to instructions, signs the transaction with
// signer and sends it to the block engine.
func (c *Client) Submit(ctx context.Context, signer *wallet.Wallet, instructions []solana.Instruction, tipLamports uint64) (solana.Signature, error) {
	start := time.Now()

	tx, err := c.Build(ctx, signer, instructions, tipLamports)
	if err != nil {
		return solana.Signature{}, err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("serialize transaction: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(raw)
	result, err := call[string](ctx, c, "/api/v1/transactions", "sendTransaction",
		[]any{encoded, map[string]string{"encoding": "base64"}})
	if err != nil {
		return solana.Signature{}, err
	}
	if result == "" {
		return solana.Signature{}, ErrNoSignature
	}
	sig, err := solana.SignatureFromBase58(result)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %q", ErrNoSignature, result)
	}

	if c.mirror != nil {
		go c.broadcast(raw, sig)
	}

	c.logger.Info("Transaction submitted",
		zap.String("signature", sig.String()),
		zap.String("signer", signer.String()),
		zap.Uint64("tip", tipLamports),
		zap.Duration("elapsed", time.Since(start)))
	return sig, nil
}

// Build assembles and signs the tipped transaction without sending it.
func (c *Client) Build(ctx context.Context, signer *wallet.Wallet, instructions []solana.Instruction, tipLamports uint64) (*solana.Transaction, error) {
	ixs := append([]solana.Instruction(nil), instructions...)
	if tipLamports > 0 {
		tipAccount, err := c.TipAccount(ctx)
		if err != nil {
			return nil, fmt.Errorf("tip account: %w", err)
		}
		ixs = append(ixs, system.NewTransferInstruction(tipLamports, signer.PublicKey, tipAccount).Build())
	}

	blockhash, err := c.blockhash.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(signer.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if err := signer.SignTransaction(tx); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

func (c *Client) broadcast(raw []byte, sig solana.Signature) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.mirror.SubmitRaw(ctx, raw); err != nil {
		c.logger.Debug("RPC mirror broadcast failed",
			zap.String("signature", sig.String()),
			zap.Error(err))
	}
}
