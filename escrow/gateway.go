// Package escrow talks to the on-chain settlement contract that holds both
// stakes of a match until it is resolved or cancelled.
package escrow

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"rps-arena/config"
)

var (
	ErrNotConfigured  = errors.New("escrow not configured")
	ErrMatchNotFound  = errors.New("escrow has no record of match")
	ErrInvalidAddress = errors.New("invalid wallet address")
	ErrReverted       = errors.New("escrow transaction reverted")
)

// Deposits is the contract's view of a match.
type Deposits struct {
	Agent1    bool
	Agent2    bool
	Resolved  bool
	Cancelled bool
	Amount    *big.Int
}

// Funded reports whether both stakes are in and the match is still live on-chain.
func (d Deposits) Funded() bool {
	return d.Agent1 && d.Agent2 && !d.Resolved && !d.Cancelled
}

// Closed reports whether the contract no longer holds funds for the match.
func (d Deposits) Closed() bool {
	return d.Resolved || d.Cancelled
}

// MatchKey derives the contract's bytes32 match id: keccak256 of the packed
// string form of the durable match id.
func MatchKey(matchID string) common.Hash {
	return crypto.Keccak256Hash([]byte(matchID))
}

type boundContract interface {
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
}

// Gateway submits resolver transactions and reads deposit state. A zero
// Gateway is valid and reports ErrNotConfigured from every call.
type Gateway struct {
	contract  boundContract
	waitMined func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	key       *ecdsa.PrivateKey
	chainID   *big.Int
	txTimeout time.Duration

	// serializes submissions so concurrent calls do not race on the resolver nonce
	sendMu sync.Mutex
}

// Dial connects to the RPC endpoint. When escrow is not configured it returns
// an unconfigured gateway and no error.
func Dial(ctx context.Context, cfg config.Escrow) (*Gateway, error) {
	if !cfg.Enabled() {
		return &Gateway{}, nil
	}
	if !common.IsHexAddress(cfg.Address) {
		return nil, fmt.Errorf("escrow address %q: %w", cfg.Address, ErrInvalidAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse resolver key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parse escrow abi: %w", err)
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial escrow rpc: %w", err)
	}
	contract := bind.NewBoundContract(common.HexToAddress(cfg.Address), parsed, client, client, client)

	g := &Gateway{
		contract: contract,
		waitMined: func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
			return bind.WaitMined(ctx, client, tx)
		},
		key:       key,
		chainID:   big.NewInt(cfg.ChainID),
		txTimeout: cfg.TxTimeout,
	}
	log.Printf("[ESCROW] Configured contract %s on chain %d (resolver %s)",
		cfg.Address, cfg.ChainID, crypto.PubkeyToAddress(key.PublicKey).Hex())
	return g, nil
}

// Configured reports whether calls reach a contract.
func (g *Gateway) Configured() bool {
	return g != nil && g.contract != nil
}

// CreateMatch registers the match and its stake, blocking until mined.
func (g *Gateway) CreateMatch(ctx context.Context, matchID, agent1, agent2 string, amount *big.Int) (string, error) {
	if !common.IsHexAddress(agent1) || !common.IsHexAddress(agent2) {
		return "", ErrInvalidAddress
	}
	return g.send(ctx, "createMatch", MatchKey(matchID),
		common.HexToAddress(agent1), common.HexToAddress(agent2), amount)
}

// Deposits reads the contract's record for the match. ErrMatchNotFound means
// the contract has no such match (never created, or another network).
func (g *Gateway) Deposits(ctx context.Context, matchID string) (Deposits, error) {
	if !g.Configured() {
		return Deposits{}, ErrNotConfigured
	}
	var out []interface{}
	if err := g.contract.Call(&bind.CallOpts{Context: ctx}, &out, "matches", MatchKey(matchID)); err != nil {
		return Deposits{}, fmt.Errorf("read escrow match: %w", err)
	}
	return decodeDeposits(out)
}

// Resolve pays the pot to winner, blocking until mined.
func (g *Gateway) Resolve(ctx context.Context, matchID, winner string) (string, error) {
	if !common.IsHexAddress(winner) {
		return "", ErrInvalidAddress
	}
	return g.send(ctx, "resolve", MatchKey(matchID), common.HexToAddress(winner))
}

// CancelAndRefund returns deposits to whoever made them, blocking until mined.
func (g *Gateway) CancelAndRefund(ctx context.Context, matchID string) (string, error) {
	return g.send(ctx, "cancelAndRefund", MatchKey(matchID))
}

func (g *Gateway) send(ctx context.Context, method string, args ...interface{}) (string, error) {
	if !g.Configured() {
		return "", ErrNotConfigured
	}
	opts, err := bind.NewKeyedTransactorWithChainID(g.key, g.chainID)
	if err != nil {
		return "", fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx

	g.sendMu.Lock()
	tx, err := g.contract.Transact(opts, method, args...)
	g.sendMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("%s: %w", method, err)
	}

	waitCtx := ctx
	if g.txTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.txTimeout)
		defer cancel()
	}
	receipt, err := g.waitMined(waitCtx, tx)
	if err != nil {
		return "", fmt.Errorf("%s: wait for %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%s %s: %w", method, tx.Hash().Hex(), ErrReverted)
	}
	return tx.Hash().Hex(), nil
}

func decodeDeposits(out []interface{}) (Deposits, error) {
	if len(out) != 7 {
		return Deposits{}, fmt.Errorf("escrow matches(): unexpected %d outputs", len(out))
	}
	agent1, ok := out[0].(common.Address)
	if !ok {
		return Deposits{}, fmt.Errorf("escrow matches(): agent1 has type %T", out[0])
	}
	if agent1 == (common.Address{}) {
		return Deposits{}, ErrMatchNotFound
	}
	d := Deposits{}
	d.Amount, _ = out[2].(*big.Int)
	d.Agent1, _ = out[3].(bool)
	d.Agent2, _ = out[4].(bool)
	d.Resolved, _ = out[5].(bool)
	d.Cancelled, _ = out[6].(bool)
	return d, nil
}
