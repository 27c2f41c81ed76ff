package chain

import (
	"context"
	"crypto/ecdsa"
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
	"go.uber.org/zap"
)

const fallbackGasLimit = uint64(300_000)

// Client is the wallet-provider and contract-call boundary: it holds the
// server-side signing keys, reads token allowances and oracle values, and
// submits approval / primary transactions.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int

	keys     map[common.Address]*ecdsa.PrivateKey
	accounts []common.Address // key registration order

	pollInterval time.Duration
	waitTimeout  time.Duration

	nonceMu sync.Mutex // serializes nonce fetch + submit per client
	log     *zap.Logger
}

type Options struct {
	RPCURL       string
	SignerKeys   []string // hex-encoded private keys
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

func Dial(ctx context.Context, opts Options, log *zap.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWalletUnavailable, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("%w: %v", ErrWalletUnavailable, err)
	}

	c := &Client{
		eth:          eth,
		chainID:      chainID,
		keys:         make(map[common.Address]*ecdsa.PrivateKey),
		pollInterval: opts.PollInterval,
		waitTimeout:  opts.WaitTimeout,
		log:          log,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 2 * time.Second
	}
	if c.waitTimeout <= 0 {
		c.waitTimeout = 2 * time.Minute
	}

	for _, hexKey := range opts.SignerKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("invalid signer key: %w", err)
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, dup := c.keys[addr]; !dup {
			c.keys[addr] = key
			c.accounts = append(c.accounts, addr)
		}
	}

	log.Info("chain client connected",
		zap.String("rpc", opts.RPCURL),
		zap.Int64("chain_id", chainID.Int64()),
		zap.Int("accounts", len(c.accounts)),
	)
	return c, nil
}

func (c *Client) Close() { c.eth.Close() }

func (c *Client) ChainID() int64 { return c.chainID.Int64() }

// Accounts returns the wallet's addresses in key registration order; the
// first is the conventional default account.
func (c *Client) Accounts() []string {
	out := make([]string, 0, len(c.accounts))
	for _, a := range c.accounts {
		out = append(out, a.Hex())
	}
	return out
}

func (c *Client) HasAccount(address string) bool {
	_, ok := c.keys[common.HexToAddress(address)]
	return ok
}

// --- reads ---

func (c *Client) call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrWalletUnavailable, method, err)
	}
	return parsed.Unpack(method, out)
}

// Allowance reads the amount owner has pre-authorized spender to pull from
// the token, in smallest units.
func (c *Client) Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	res, err := c.call(ctx, common.HexToAddress(token), erc20ABI, "allowance",
		common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, err
	}
	v, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("allowance: unexpected return type %T", res[0])
	}
	return v, nil
}

// TokenMetadata reads symbol, name and decimals from the token contract.
// Used when an admin registers a new collateral token by address.
func (c *Client) TokenMetadata(ctx context.Context, token string) (symbol, name string, decimals int, err error) {
	res, err := c.call(ctx, common.HexToAddress(token), erc20ABI, "symbol")
	if err != nil {
		return "", "", 0, err
	}
	symbol, _ = res[0].(string)

	res, err = c.call(ctx, common.HexToAddress(token), erc20ABI, "name")
	if err != nil {
		return "", "", 0, err
	}
	name, _ = res[0].(string)

	res, err = c.call(ctx, common.HexToAddress(token), erc20ABI, "decimals")
	if err != nil {
		return "", "", 0, err
	}
	d, ok := res[0].(uint8)
	if !ok {
		return "", "", 0, fmt.Errorf("decimals: unexpected return type %T", res[0])
	}
	return symbol, name, int(d), nil
}

// ReadRate reads a numeric oracle parameter (getLendingRate / getBorrowRate)
// from a contract.
func (c *Client) ReadRate(ctx context.Context, contract, method string) (int64, error) {
	res, err := c.call(ctx, common.HexToAddress(contract), readerABI, method)
	if err != nil {
		return 0, err
	}
	v, ok := res[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected return type %T", method, res[0])
	}
	return v.Int64(), nil
}

// ReadPaused reads the contract's paused flag.
func (c *Client) ReadPaused(ctx context.Context, contract string) (bool, error) {
	res, err := c.call(ctx, common.HexToAddress(contract), readerABI, "getPaused")
	if err != nil {
		return false, err
	}
	v, ok := res[0].(bool)
	if !ok {
		return false, fmt.Errorf("getPaused: unexpected return type %T", res[0])
	}
	return v, nil
}

// --- writes ---

func (c *Client) submit(ctx context.Context, from, to common.Address, data []byte) (string, error) {
	key, ok := c.keys[from]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUserRejected, from.Hex())
	}

	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("%w: nonce: %v", ErrWalletUnavailable, err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: gas price: %v", ErrWalletUnavailable, err)
	}

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		// Estimation failures on some providers don't mean the tx will
		// revert; fall back to a fixed limit.
		gas = fallbackGasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return "", err
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("%w: send: %v", ErrWalletUnavailable, err)
	}

	hash := signed.Hash().Hex()
	c.log.Info("transaction submitted",
		zap.String("tx", hash),
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
	)
	return hash, nil
}

func (c *Client) pack(parsed abi.ABI, method string, args ...any) []byte {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		// Method names and arg types are fixed at compile time; a pack
		// failure is a programming error.
		panic(fmt.Sprintf("abi pack %s: %v", method, err))
	}
	return data
}

// Approve submits an ERC-20 approval scoping exactly amount (smallest units)
// to spender.
func (c *Client) Approve(ctx context.Context, token, owner, spender string, amount *big.Int) (string, error) {
	data := c.pack(erc20ABI, "approve", common.HexToAddress(spender), amount)
	return c.submit(ctx, common.HexToAddress(owner), common.HexToAddress(token), data)
}

func (c *Client) Deposit(ctx context.Context, contract, lender string, amount *big.Int) (string, error) {
	data := c.pack(lendingABI, "deposit", common.HexToAddress(lender), amount)
	return c.submit(ctx, common.HexToAddress(lender), common.HexToAddress(contract), data)
}

func (c *Client) Withdraw(ctx context.Context, contract, lender, depositID string) (string, error) {
	data := c.pack(lendingABI, "withdraw", common.HexToAddress(lender), common.HexToHash(depositID))
	return c.submit(ctx, common.HexToAddress(lender), common.HexToAddress(contract), data)
}

func (c *Client) Borrow(ctx context.Context, contract, borrower string, amount *big.Int, collateral string, collateralAmount *big.Int) (string, error) {
	data := c.pack(borrowABI, "borrow",
		common.HexToAddress(borrower), amount,
		common.HexToAddress(collateral), collateralAmount)
	return c.submit(ctx, common.HexToAddress(borrower), common.HexToAddress(contract), data)
}

func (c *Client) RepayFunds(ctx context.Context, contract, borrower string, amount *big.Int, contractID string) (string, error) {
	data := c.pack(borrowABI, "repayFunds",
		common.HexToAddress(borrower), amount, common.HexToHash(contractID))
	return c.submit(ctx, common.HexToAddress(borrower), common.HexToAddress(contract), data)
}

func (c *Client) ProcessDeal(ctx context.Context, contract, admin, client, token string, amount *big.Int) (string, error) {
	data := c.pack(escrowABI, "processDeal",
		common.HexToAddress(client), common.HexToAddress(token), amount)
	return c.submit(ctx, common.HexToAddress(admin), common.HexToAddress(contract), data)
}

func (c *Client) SetPaused(ctx context.Context, contract, admin string, paused bool) (string, error) {
	data := c.pack(lendingABI, "setPaused", paused)
	return c.submit(ctx, common.HexToAddress(admin), common.HexToAddress(contract), data)
}

func (c *Client) SetLendingRate(ctx context.Context, contract, admin string, rate int64) (string, error) {
	data := c.pack(lendingABI, "setLendingRate", big.NewInt(rate))
	return c.submit(ctx, common.HexToAddress(admin), common.HexToAddress(contract), data)
}

func (c *Client) SetBorrowRate(ctx context.Context, contract, admin string, rate int64) (string, error) {
	data := c.pack(borrowABI, "setBorrowRate", big.NewInt(rate))
	return c.submit(ctx, common.HexToAddress(admin), common.HexToAddress(contract), data)
}
