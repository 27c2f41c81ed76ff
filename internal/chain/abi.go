package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal ABI fragments for the contracts this service talks to. The full
// contract surfaces live on-chain; only the methods and events used here are
// declared.

const erc20ABIJSON = `[
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

const lendingABIJSON = `[
	{"type":"function","name":"deposit","stateMutability":"nonpayable","inputs":[{"name":"lender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"lender","type":"address"},{"name":"depositId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"setPaused","stateMutability":"nonpayable","inputs":[{"name":"value","type":"bool"}],"outputs":[]},
	{"type":"function","name":"setLendingRate","stateMutability":"nonpayable","inputs":[{"name":"value","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"DepositCreated","anonymous":false,"inputs":[{"name":"lender","type":"address","indexed":true},{"name":"depositId","type":"bytes32","indexed":false},{"name":"deadline","type":"uint64","indexed":false}]}
]`

const borrowABIJSON = `[
	{"type":"function","name":"borrow","stateMutability":"nonpayable","inputs":[{"name":"borrower","type":"address"},{"name":"amount","type":"uint256"},{"name":"collateral","type":"address"},{"name":"collateralAmount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"repayFunds","stateMutability":"nonpayable","inputs":[{"name":"borrower","type":"address"},{"name":"repaymentAmount","type":"uint256"},{"name":"contractId","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"setBorrowRate","stateMutability":"nonpayable","inputs":[{"name":"value","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"LoanCreated","anonymous":false,"inputs":[{"name":"borrower","type":"address","indexed":true},{"name":"contractId","type":"bytes32","indexed":false},{"name":"dueDate","type":"uint64","indexed":false}]}
]`

const escrowABIJSON = `[
	{"type":"function","name":"processDeal","stateMutability":"nonpayable","inputs":[{"name":"client","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// readerABIJSON covers the oracle getters shared by the lending and borrow
// contracts.
const readerABIJSON = `[
	{"type":"function","name":"getLendingRate","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getBorrowRate","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getPaused","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]}
]`

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return parsed
}

var (
	erc20ABI   = mustParseABI(erc20ABIJSON)
	lendingABI = mustParseABI(lendingABIJSON)
	borrowABI  = mustParseABI(borrowABIJSON)
	escrowABI  = mustParseABI(escrowABIJSON)
	readerABI  = mustParseABI(readerABIJSON)
)
