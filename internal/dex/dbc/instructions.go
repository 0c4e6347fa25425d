// =============================
// File: internal/dex/dbc/instructions.go
// =============================
package dbc

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/rovshanmuradov/launch-sniper/internal/blockchain/solbc"
	"github.com/rovshanmuradov/launch-sniper/internal/wallet"
)

var (
	ProgramID     = solbc.DBCProgramID
	PoolAuthority = solana.MustPublicKeyFromBase58("FhVo3mqL8PW5pH5U2CN4XE33DokiyZnUwuGpH2hmHLuM")
	WrappedSOL    = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

	swapDiscriminator = func() []byte {
		h := sha256.Sum256([]byte("global:swap"))
		return h[:8]
	}()
)

// EventAuthority is the anchor event authority of the program.
func EventAuthority() solana.PublicKey {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("__event_authority")}, ProgramID)
	if err != nil {
		panic(err)
	}
	return addr
}

var eventAuthority = EventAuthority()

// swapParams holds the accounts and amounts of a swap instruction.
type swapParams struct {
	Pool      solana.PublicKey
	State     *VirtualPool
	QuoteMint solana.PublicKey
	Payer     solana.PublicKey
	Input     solana.PublicKey
	Output    solana.PublicKey
	AmountIn  uint64
	MinOut    uint64
}

func createSwapInstruction(p swapParams) solana.Instruction {
	data := make([]byte, 8+8+8)
	copy(data[0:8], swapDiscriminator)
	binary.LittleEndian.PutUint64(data[8:16], p.AmountIn)
	binary.LittleEndian.PutUint64(data[16:24], p.MinOut)

	accounts := []*solana.AccountMeta{
		solana.NewAccountMeta(PoolAuthority, false, false),
		solana.NewAccountMeta(p.State.Config, false, false),
		solana.NewAccountMeta(p.Pool, true, false),
		solana.NewAccountMeta(p.Input, true, false),
		solana.NewAccountMeta(p.Output, true, false),
		solana.NewAccountMeta(p.State.BaseVault, true, false),
		solana.NewAccountMeta(p.State.QuoteVault, true, false),
		solana.NewAccountMeta(p.State.BaseMint, false, false),
		solana.NewAccountMeta(p.QuoteMint, false, false),
		solana.NewAccountMeta(p.Payer, true, true),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		// no referral account
		solana.NewAccountMeta(ProgramID, false, false),
		solana.NewAccountMeta(eventAuthority, false, false),
		solana.NewAccountMeta(ProgramID, false, false),
	}
	return solana.NewInstruction(ProgramID, accounts, data)
}

func priorityInstructions(unitLimit uint32, unitPrice uint64) []solana.Instruction {
	var out []solana.Instruction
	if unitLimit > 0 {
		out = append(out, computebudget.NewSetComputeUnitLimitInstruction(unitLimit).Build())
	}
	if unitPrice > 0 {
		out = append(out, computebudget.NewSetComputeUnitPriceInstruction(unitPrice).Build())
	}
	return out
}

// buyInstructions wraps SOL, swaps it for the base token and unwraps the rest.
func (p *Pricer) buyInstructions(owner, pool solana.PublicKey, state *VirtualPool, quoteMint solana.PublicKey, amountIn, minOut uint64) ([]solana.Instruction, error) {
	wsolATA, _, err := solana.FindAssociatedTokenAddress(owner, WrappedSOL)
	if err != nil {
		return nil, err
	}
	baseATA, _, err := solana.FindAssociatedTokenAddress(owner, state.BaseMint)
	if err != nil {
		return nil, err
	}

	ixs := priorityInstructions(p.cfg.ComputeUnitLimit, p.cfg.ComputeUnitPrice)
	ixs = append(ixs,
		wallet.CreateATAIdempotentInstruction(owner, owner, WrappedSOL),
		system.NewTransferInstruction(amountIn, owner, wsolATA).Build(),
		token.NewSyncNativeInstruction(wsolATA).Build(),
		wallet.CreateATAIdempotentInstruction(owner, owner, state.BaseMint),
		createSwapInstruction(swapParams{
			Pool:      pool,
			State:     state,
			QuoteMint: quoteMint,
			Payer:     owner,
			Input:     wsolATA,
			Output:    baseATA,
			AmountIn:  amountIn,
			MinOut:    minOut,
		}),
		token.NewCloseAccountInstruction(wsolATA, owner, owner, nil).Build(),
	)
	if fee := p.platformFee(amountIn); fee > 0 {
		ixs = append(ixs, system.NewTransferInstruction(fee, owner, p.cfg.FeeRecipient).Build())
	}
	return ixs, nil
}

// sellInstructions swaps the whole base balance for SOL and closes the
// emptied token account.
func (p *Pricer) sellInstructions(owner, pool solana.PublicKey, state *VirtualPool, quoteMint solana.PublicKey, amountIn, minOut uint64) ([]solana.Instruction, error) {
	wsolATA, _, err := solana.FindAssociatedTokenAddress(owner, WrappedSOL)
	if err != nil {
		return nil, err
	}
	baseATA, _, err := solana.FindAssociatedTokenAddress(owner, state.BaseMint)
	if err != nil {
		return nil, err
	}

	ixs := priorityInstructions(p.cfg.ComputeUnitLimit, p.cfg.ComputeUnitPrice)
	ixs = append(ixs,
		wallet.CreateATAIdempotentInstruction(owner, owner, WrappedSOL),
		createSwapInstruction(swapParams{
			Pool:      pool,
			State:     state,
			QuoteMint: quoteMint,
			Payer:     owner,
			Input:     baseATA,
			Output:    wsolATA,
			AmountIn:  amountIn,
			MinOut:    minOut,
		}),
		token.NewCloseAccountInstruction(wsolATA, owner, owner, nil).Build(),
		token.NewCloseAccountInstruction(baseATA, owner, owner, nil).Build(),
	)
	return ixs, nil
}
