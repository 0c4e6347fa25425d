package solbc

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

// LaunchMarker is the log line emitted when a bonding curve pool is created.
const LaunchMarker = "InitializeVirtualPoolWithSplToken"

// DBCProgramID is the dynamic bonding curve program.
var DBCProgramID = solana.MustPublicKeyFromBase58("dbcij3LWUppWqq96dh6gJWwBifmcGfLSB5D4DuSMaqN")

// Account positions in initialize_virtual_pool_with_spl_token.
const (
	launchAccountMint = 3
	launchAccountPool = 5
)

var (
	ErrNotLaunch       = errors.New("transaction does not create a pool")
	ErrMalformedLaunch = errors.New("malformed pool creation instruction")
)

var initializePoolDiscriminator = discriminator("initialize_virtual_pool_with_spl_token")

// discriminator computes an Anchor instruction discriminator.
func discriminator(name string) []byte {
	hash := sha256.Sum256([]byte("global:" + name))
	return hash[:8]
}

type initializePoolParams struct {
	Name   string
	Symbol string
	URI    string
}

// DecodeLaunch fetches sig and extracts the launch it performed.
func (c *Client) DecodeLaunch(ctx context.Context, sig solana.Signature, slot uint64) (*domain.LaunchEvent, error) {
	res, err := c.Transaction(ctx, sig)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", sig, err)
	}
	if res.Transaction == nil {
		return nil, fmt.Errorf("transaction %s: empty envelope", sig)
	}
	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", sig, err)
	}

	ev, err := ParseLaunch(tx, res.Meta, DBCProgramID)
	if err != nil {
		return nil, err
	}
	ev.Signature = sig
	ev.Slot = slot
	if ev.Slot == 0 {
		ev.Slot = res.Slot
	}
	return ev, nil
}

// ParseLaunch finds the pool creation instruction of program in tx, looking
// at top level instructions first and inner instructions second.
func ParseLaunch(tx *solana.Transaction, meta *rpc.TransactionMeta, program solana.PublicKey) (*domain.LaunchEvent, error) {
	keys := accountKeys(tx, meta)

	candidates := append([]solana.CompiledInstruction(nil), tx.Message.Instructions...)
	if meta != nil {
		for _, inner := range meta.InnerInstructions {
			candidates = append(candidates, inner.Instructions...)
		}
	}

	for _, ix := range candidates {
		if int(ix.ProgramIDIndex) >= len(keys) || !keys[ix.ProgramIDIndex].Equals(program) {
			continue
		}
		data := []byte(ix.Data)
		if len(data) < 8 || string(data[:8]) != string(initializePoolDiscriminator) {
			continue
		}
		return decodeLaunchInstruction(keys, ix.Accounts, data[8:])
	}
	return nil, ErrNotLaunch
}

func decodeLaunchInstruction(keys solana.PublicKeySlice, accounts []uint16, args []byte) (*domain.LaunchEvent, error) {
	if len(accounts) <= launchAccountPool {
		return nil, fmt.Errorf("%w: %d accounts", ErrMalformedLaunch, len(accounts))
	}
	mintIdx, poolIdx := accounts[launchAccountMint], accounts[launchAccountPool]
	if int(mintIdx) >= len(keys) || int(poolIdx) >= len(keys) {
		return nil, fmt.Errorf("%w: account index out of range", ErrMalformedLaunch)
	}

	var params initializePoolParams
	if err := bin.NewBorshDecoder(args).Decode(&params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLaunch, err)
	}

	return &domain.LaunchEvent{
		Mint:   keys[mintIdx],
		Pool:   keys[poolIdx],
		Name:   params.Name,
		Symbol: params.Symbol,
		URI:    params.URI,
	}, nil
}

// accountKeys returns static keys followed by keys loaded from lookup tables.
func accountKeys(tx *solana.Transaction, meta *rpc.TransactionMeta) solana.PublicKeySlice {
	keys := append(solana.PublicKeySlice(nil), tx.Message.AccountKeys...)
	if meta != nil {
		keys = append(keys, meta.LoadedAddresses.Writable...)
		keys = append(keys, meta.LoadedAddresses.ReadOnly...)
	}
	return keys
}

// EncodeLaunchInstruction builds a pool creation instruction. It is used to
// replay launches in tests and dry runs.
func EncodeLaunchInstruction(program solana.PublicKey, accounts []solana.PublicKey, name, symbol, uri string) (solana.Instruction, error) {
	args, err := bin.MarshalBorsh(initializePoolParams{Name: name, Symbol: symbol, URI: uri})
	if err != nil {
		return nil, err
	}
	metas := make([]*solana.AccountMeta, 0, len(accounts))
	for i, acc := range accounts {
		metas = append(metas, solana.NewAccountMeta(acc, i == launchAccountPool || i == launchAccountMint, false))
	}
	data := append(append([]byte(nil), initializePoolDiscriminator...), args...)
	return solana.NewInstruction(program, metas, data), nil
}
