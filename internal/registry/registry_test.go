package registry

import (
	"strings"
	"testing"
)

func TestBuiltinTokensOrdering(t *testing.T) {
	mainnet := builtinTokens["mainnet"]
	if len(mainnet) != 4 {
		t.Fatalf("expected 4 mainnet tokens, got %d", len(mainnet))
	}
	if mainnet[0].Symbol != "WETH" {
		t.Errorf("default mainnet token should be WETH, got %s", mainnet[0].Symbol)
	}

	sepolia := builtinTokens["sepolia"]
	if len(sepolia) != 1 || sepolia[0].Symbol != "WETH" {
		t.Errorf("sepolia should carry a single WETH entry, got %+v", sepolia)
	}
}

func TestBuiltinTokenDecimals(t *testing.T) {
	want := map[string]int{"WETH": 18, "DAI": 18, "USDT": 6, "USDC": 6}
	for _, tok := range builtinTokens["mainnet"] {
		if tok.Decimals != want[tok.Symbol] {
			t.Errorf("%s decimals = %d, want %d", tok.Symbol, tok.Decimals, want[tok.Symbol])
		}
	}
}

func TestIsBuiltinCaseInsensitive(t *testing.T) {
	r := &Registry{}
	addr := builtinTokens["mainnet"][0].Address
	if !r.isBuiltin("mainnet", strings.ToLower(addr)) {
		t.Error("lowercased builtin address should match")
	}
	if r.isBuiltin("mainnet", "0x0000000000000000000000000000000000000001") {
		t.Error("unknown address should not match")
	}
	if r.isBuiltin("sepolia", addr) {
		t.Error("mainnet address should not match on sepolia")
	}
}
