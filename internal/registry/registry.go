package registry

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/config"
	"github.com/koinlend/backend/internal/models"
	"github.com/koinlend/backend/internal/repositories"
)

var (
	ErrInvalidAddress = errors.New("not a valid token address")
	ErrTokenNotFound  = errors.New("token not found")
)

// builtinTokens are the collateral tokens shipped with the product. They
// always precede admin-added tokens and the first entry per network is
// the default selection.
var builtinTokens = map[string][]models.Token{
	"mainnet": {
		{Symbol: "WETH", Name: "Wrapped Ether", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18, Network: "mainnet"},
		{Symbol: "DAI", Name: "Dai Stablecoin", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18, Network: "mainnet"},
		{Symbol: "USDT", Name: "Tether USD", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6, Network: "mainnet"},
		{Symbol: "USDC", Name: "USD Coin", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6, Network: "mainnet"},
	},
	"sepolia": {
		{Symbol: "WETH", Name: "Wrapped Ether", Address: "0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14", Decimals: 18, Network: "sepolia"},
	},
}

// MetadataReader loads ERC-20 metadata for a contract address.
type MetadataReader interface {
	TokenMetadata(ctx context.Context, token string) (symbol, name string, decimals int, err error)
}

// Registry serves the token lists shown in collateral pickers. Built-in
// tokens are static; admin-added ones live in postgres and are appended
// in insertion order.
type Registry struct {
	repo  *repositories.TokenRepo
	chain MetadataReader
	cfg   *config.Config
	log   *zap.Logger
}

func New(repo *repositories.TokenRepo, chain MetadataReader, cfg *config.Config, log *zap.Logger) *Registry {
	return &Registry{repo: repo, chain: chain, cfg: cfg, log: log}
}

// Koin returns the platform token. It has eight decimals regardless of
// network.
func (r *Registry) Koin() models.Token {
	return models.Token{
		Symbol:   "KOIN",
		Name:     "Koin",
		Address:  r.cfg.KoinToken,
		Decimals: 8,
	}
}

// ListByNetwork returns built-in tokens followed by stored ones. The
// first token is the default collateral choice.
func (r *Registry) ListByNetwork(ctx context.Context, network string) ([]models.Token, error) {
	out := append([]models.Token(nil), builtinTokens[network]...)

	stored, err := r.repo.ListByNetwork(ctx, network)
	if err != nil {
		return nil, err
	}
	for _, t := range stored {
		if r.isBuiltin(network, t.Address) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Default returns the default collateral token for a network.
func (r *Registry) Default(ctx context.Context, network string) (models.Token, error) {
	tokens, err := r.ListByNetwork(ctx, network)
	if err != nil {
		return models.Token{}, err
	}
	if len(tokens) == 0 {
		return models.Token{}, ErrTokenNotFound
	}
	return tokens[0], nil
}

// Resolve finds a token by address, checking built-ins before storage.
func (r *Registry) Resolve(ctx context.Context, network, address string) (models.Token, error) {
	for _, t := range builtinTokens[network] {
		if strings.EqualFold(t.Address, address) {
			return t, nil
		}
	}
	t, err := r.repo.GetByAddress(ctx, network, address)
	if err != nil {
		if errors.Is(err, repositories.ErrTokenNotFound) {
			return models.Token{}, ErrTokenNotFound
		}
		return models.Token{}, err
	}
	return *t, nil
}

// AddToken registers a new collateral token by reading its on-chain
// metadata. Duplicates of built-ins or stored tokens are rejected.
func (r *Registry) AddToken(ctx context.Context, network, address string) (*models.Token, error) {
	if !common.IsHexAddress(address) {
		return nil, ErrInvalidAddress
	}
	address = common.HexToAddress(address).Hex()

	if r.isBuiltin(network, address) {
		return nil, repositories.ErrDuplicateToken
	}

	symbol, name, decimals, err := r.chain.TokenMetadata(ctx, address)
	if err != nil {
		return nil, err
	}

	token := &models.Token{
		Symbol:   symbol,
		Name:     name,
		Address:  address,
		Decimals: decimals,
		Network:  network,
	}
	if err := r.repo.Create(ctx, token); err != nil {
		return nil, err
	}

	r.log.Info("token registered",
		zap.String("symbol", symbol),
		zap.String("address", address),
		zap.String("network", network))
	return token, nil
}

func (r *Registry) isBuiltin(network, address string) bool {
	for _, t := range builtinTokens[network] {
		if strings.EqualFold(t.Address, address) {
			return true
		}
	}
	return false
}
