package chain

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func depositReceipt(t *testing.T, id [32]byte, deadline uint64) *Receipt {
	t.Helper()
	ev := lendingABI.Events["DepositCreated"]
	data, err := ev.Inputs.NonIndexed().Pack(id, deadline)
	if err != nil {
		t.Fatalf("pack event data: %v", err)
	}
	return &Receipt{
		TxHash:  "0x01",
		Success: true,
		Logs: []*types.Log{{
			Topics: []common.Hash{ev.ID, common.HexToHash("0xabc")},
			Data:   data,
		}},
	}
}

func TestParseDepositCreated(t *testing.T) {
	id := [32]byte{0xde, 0xad, 0xbe, 0xef}
	deadline := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	info, err := ParseDepositCreated(depositReceipt(t, id, uint64(deadline.Unix())))
	if err != nil {
		t.Fatalf("ParseDepositCreated: %v", err)
	}
	if info.ContractID != common.Hash(id).Hex() {
		t.Errorf("ContractID = %s, want %s", info.ContractID, common.Hash(id).Hex())
	}
	if !info.Deadline.Equal(deadline) {
		t.Errorf("Deadline = %s, want %s", info.Deadline, deadline)
	}
}

func TestParseDepositCreatedMissingEvent(t *testing.T) {
	r := &Receipt{TxHash: "0x02", Success: true}
	if _, err := ParseDepositCreated(r); err == nil {
		t.Error("ParseDepositCreated should fail on a receipt without the event")
	}

	// Unrelated events are skipped, not misparsed.
	other := &Receipt{TxHash: "0x03", Success: true, Logs: []*types.Log{{
		Topics: []common.Hash{common.HexToHash("0xffff")},
	}}}
	if _, err := ParseDepositCreated(other); err == nil {
		t.Error("ParseDepositCreated should fail when only unrelated events are present")
	}
}

func TestParseLoanCreated(t *testing.T) {
	ev := borrowABI.Events["LoanCreated"]
	id := [32]byte{0x11, 0x22}
	due := time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)
	data, err := ev.Inputs.NonIndexed().Pack(id, uint64(due.Unix()))
	if err != nil {
		t.Fatalf("pack event data: %v", err)
	}
	r := &Receipt{TxHash: "0x04", Success: true, Logs: []*types.Log{{
		Topics: []common.Hash{ev.ID, common.HexToHash("0xabc")},
		Data:   data,
	}}}

	info, err := ParseLoanCreated(r)
	if err != nil {
		t.Fatalf("ParseLoanCreated: %v", err)
	}
	if info.ContractID != common.Hash(id).Hex() {
		t.Errorf("ContractID = %s, want %s", info.ContractID, common.Hash(id).Hex())
	}
	if !info.DueDate.Equal(due) {
		t.Errorf("DueDate = %s, want %s", info.DueDate, due)
	}
}
