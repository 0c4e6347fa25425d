// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/wallet"
	"github.com/rovshanmuradov/launch-sniper/internal/watcher"
)

var (
	errMissingKeypair   = errors.New("missing keypair")
	errMissingFields    = errors.New("missing required fields")
	errTrackingNotArray = errors.New("tracking must be an array")
	errMissingMint      = errors.New("missing mint")
	errMissingPubkey    = errors.New("missing pubkey")
)

// Sniper is the engine as seen by the request surface.
type Sniper interface {
	Watch(op *watcher.Operator)
	SellNow(ctx context.Context, w *wallet.Wallet, mint solana.PublicKey, tip float64) (solana.Signature, error)
	Stop(ctx context.Context, key string) bool
	Price(ctx context.Context, mint solana.PublicKey) (watcher.PoolRef, float64, error)
}

// Defaults applied to operator registrations.
type Defaults struct {
	MinScore float64
	Tip      float64 // SOL, used by /sell when no tip is given
}

// Handler serves the operator endpoints.
type Handler struct {
	sniper   Sniper
	defaults Defaults
	logger   *zap.Logger
}

func NewHandler(sniper Sniper, defaults Defaults, logger *zap.Logger) *Handler {
	return &Handler{
		sniper:   sniper,
		defaults: defaults,
		logger:   logger,
	}
}

type sellModeRequest struct {
	Type        string   `json:"type"`
	Seconds     *float64 `json:"seconds"`
	TP          *float64 `json:"tp"`
	SL          *float64 `json:"sl"`
	ScoreScaled bool     `json:"score_scaled"`
}

type watchRequest struct {
	Keypair        string           `json:"keypair"`
	UserID         json.Number      `json:"user_id"`
	JitoTip        *float64         `json:"jito_tip"`
	Fee            *float64         `json:"fee"`
	BuyAmount      *float64         `json:"buy_amount"`
	SellMode       *sellModeRequest `json:"sell_mode"`
	Tracking       json.RawMessage  `json:"tracking"`
	MinScore       *float64         `json:"min_score"`
	ReputationGate *bool            `json:"reputation_gate"`
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// Watch registers an operator, replacing any earlier registration.
func (h *Handler) Watch(c *gin.Context) {
	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	op, err := h.operatorFrom(req)
	if err != nil {
		fail(c, err)
		return
	}

	h.sniper.Watch(op)
	c.JSON(http.StatusOK, gin.H{"message": "Started watching successfully"})
}

func (h *Handler) operatorFrom(req watchRequest) (*watcher.Operator, error) {
	if strings.TrimSpace(req.Keypair) == "" {
		return nil, errMissingKeypair
	}
	if req.JitoTip == nil || req.Fee == nil || req.BuyAmount == nil ||
		req.SellMode == nil || len(req.Tracking) == 0 || string(req.Tracking) == "null" || req.UserID == "" {
		return nil, errMissingFields
	}

	var tracking []string
	if err := json.Unmarshal(req.Tracking, &tracking); err != nil {
		return nil, errTrackingNotArray
	}
	channelID, err := req.UserID.Int64()
	if err != nil {
		return nil, errors.New("user_id must be an integer")
	}
	if *req.BuyAmount <= 0 {
		return nil, errors.New("buy_amount must be positive")
	}
	if *req.JitoTip < 0 || *req.Fee < 0 {
		return nil, errors.New("jito_tip and fee must not be negative")
	}

	w, err := wallet.NewWallet(req.Keypair)
	if err != nil {
		return nil, err
	}
	strategy, err := watcher.ParseStrategy(watcher.StrategySpec{
		Type:        req.SellMode.Type,
		Seconds:     req.SellMode.Seconds,
		TakeProfit:  req.SellMode.TP,
		StopLoss:    req.SellMode.SL,
		ScoreScaled: req.SellMode.ScoreScaled,
	})
	if err != nil {
		return nil, err
	}

	targets := watcher.NormalizeTargets(tracking)
	op := &watcher.Operator{
		Key:            w.PublicKey.String(),
		Wallet:         w,
		ChannelID:      channelID,
		Targets:        targets,
		BuyAmount:      *req.BuyAmount,
		Slippage:       *req.Fee,
		Tip:            *req.JitoTip,
		Strategy:       strategy,
		ReputationGate: len(targets) == 0,
		MinScore:       h.defaults.MinScore,
	}
	if req.ReputationGate != nil {
		op.ReputationGate = *req.ReputationGate
	}
	if req.MinScore != nil {
		op.MinScore = *req.MinScore
	}
	return op, nil
}

type sellRequest struct {
	Keypair string   `json:"keypair"`
	Mint    string   `json:"mint"`
	Tip     *float64 `json:"tip"`
}

// Sell liquidates the caller's whole balance of a token.
func (h *Handler) Sell(c *gin.Context) {
	var req sellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	if strings.TrimSpace(req.Keypair) == "" {
		fail(c, errMissingKeypair)
		return
	}
	if strings.TrimSpace(req.Mint) == "" {
		fail(c, errMissingMint)
		return
	}

	w, err := wallet.NewWallet(req.Keypair)
	if err != nil {
		fail(c, err)
		return
	}
	mint, err := solana.PublicKeyFromBase58(strings.TrimSpace(req.Mint))
	if err != nil {
		fail(c, err)
		return
	}
	tip := h.defaults.Tip
	if req.Tip != nil {
		tip = *req.Tip
	}

	sig, err := h.sniper.SellNow(c.Request.Context(), w, mint, tip)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature": sig.String()})
}

type stopRequest struct {
	Pubkey string `json:"pubkey"`
}

// Stop deactivates an operator.
func (h *Handler) Stop(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	key := strings.TrimSpace(req.Pubkey)
	if key == "" {
		fail(c, errMissingPubkey)
		return
	}

	if !h.sniper.Stop(c.Request.Context(), key) {
		h.logger.Debug("Stop for unknown operator", zap.String("operator", key))
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stopped watching"})
}

type priceRequest struct {
	Mint string `json:"mint"`
}

// Price returns the spot price of a token.
func (h *Handler) Price(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	if strings.TrimSpace(req.Mint) == "" {
		fail(c, errMissingMint)
		return
	}
	mint, err := solana.PublicKeyFromBase58(strings.TrimSpace(req.Mint))
	if err != nil {
		fail(c, err)
		return
	}

	ref, price, err := h.sniper.Price(c.Request.Context(), mint)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mint":   ref.Mint.String(),
		"pool":   ref.Pool.String(),
		"ticker": ref.Ticker,
		"price":  price,
	})
}
