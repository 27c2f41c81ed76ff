package wallet

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/chain"
	"github.com/koinlend/backend/internal/config"
)

type fakeChain struct {
	accounts []string
	chainID  int64
}

func (f *fakeChain) Accounts() []string { return f.accounts }
func (f *fakeChain) ChainID() int64     { return f.chainID }
func (f *fakeChain) HasAccount(address string) bool {
	for _, a := range f.accounts {
		if a == address {
			return true
		}
	}
	return false
}

func TestConnectNoAccounts(t *testing.T) {
	s := NewSessionService(&fakeChain{}, nil, nil, &config.Config{}, zap.NewNop())
	_, _, err := s.Connect(context.Background())
	if !errors.Is(err, chain.ErrNoAccounts) {
		t.Errorf("want ErrNoAccounts, got %v", err)
	}
}

func TestConnectUnsupportedNetwork(t *testing.T) {
	cfg := &config.Config{SupportedChainIDs: []int64{1, 11155111}}
	s := NewSessionService(&fakeChain{accounts: []string{"0xabc"}, chainID: 56}, nil, nil, cfg, zap.NewNop())
	_, _, err := s.Connect(context.Background())
	if !errors.Is(err, chain.ErrUnsupportedNetwork) {
		t.Errorf("want ErrUnsupportedNetwork, got %v", err)
	}
}

func TestNetworkName(t *testing.T) {
	cases := map[int64]string{
		1:        "mainnet",
		11155111: "sepolia",
		56:       "chain-56",
	}
	for id, want := range cases {
		if got := networkName(id); got != want {
			t.Errorf("networkName(%d) = %s, want %s", id, got, want)
		}
	}
}
