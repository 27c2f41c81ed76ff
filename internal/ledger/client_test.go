package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/models"
)

func TestCreateRecord(t *testing.T) {
	var got models.LedgerRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/lend_contract" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "rec-7"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	id, err := c.CreateRecord(context.Background(), &models.LedgerRecord{
		Kind:        models.LoanKindLend,
		Token:       "KOIN",
		Amount:      "500",
		Rate:        7,
		Status:      models.LoanStatusActive,
		TxID:        "0xabc",
		Participant: "0xowner",
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if id != "rec-7" {
		t.Errorf("id = %s", id)
	}
	if got.Rate != 7 {
		t.Errorf("posted roi = %d, want 7", got.Rate)
	}
	if got.TxID != "0xabc" {
		t.Errorf("posted tx id = %s", got.TxID)
	}
}

func TestUpdateStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/borrow_contract/rec-1/status" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["status"] != models.LoanStatusCompleted {
			t.Errorf("status = %s", body["status"])
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	if err := c.UpdateStatus(context.Background(), models.LoanKindBorrow, "rec-1", models.LoanStatusCompleted); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
}

func TestDeleteRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/lend_contract/rec-9" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	if err := c.DeleteRecord(context.Background(), models.LoanKindLend, "rec-9"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
}

func TestListRecordsFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("participant") != "0xowner" || q.Get("status") != models.LoanStatusActive {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]models.LedgerRecord{{ID: "rec-1"}, {ID: "rec-2"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	records, err := c.ListRecords(context.Background(), models.LoanKindLend, "0xowner", models.LoanStatusActive)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records", len(records))
	}
}

func TestCollateralQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/borrow/request" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(models.CollateralQuote{
			CollateralAmount: "1.25",
			TokenAddress:     "0xweth",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	quote, err := c.CollateralQuote(context.Background(), "500", "0xweth")
	if err != nil {
		t.Fatalf("CollateralQuote: %v", err)
	}
	if quote.CollateralAmount != "1.25" {
		t.Errorf("collateral = %s", quote.CollateralAmount)
	}
}

func TestRejectedVsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusUnprocessableEntity)
	}))
	c := NewClient(srv.URL, zap.NewNop())
	_, err := c.CreateRecord(context.Background(), &models.LedgerRecord{Kind: models.LoanKindLend})
	if !errors.Is(err, ErrRejected) {
		t.Errorf("want ErrRejected for 4xx, got %v", err)
	}
	srv.Close()

	// After Close the transport fails outright.
	_, err = c.CreateRecord(context.Background(), &models.LedgerRecord{Kind: models.LoanKindLend})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("want ErrUnavailable for transport failure, got %v", err)
	}
}
