package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/models"
)

var (
	// ErrUnavailable: the ledger service could not be reached. The caller
	// may retry later; chain state is unaffected.
	ErrUnavailable = errors.New("ledger service unavailable")

	// ErrRejected: the ledger service understood the request and refused
	// it. Retrying the same payload will not help.
	ErrRejected = errors.New("ledger service rejected request")
)

// Client talks to the off-chain loan ledger REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

// CreateRecord registers a new lend or borrow position and returns its id.
func (c *Client) CreateRecord(ctx context.Context, rec *models.LedgerRecord) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	path := "/" + rec.Kind
	if err := c.do(ctx, http.MethodPost, path, rec, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: create response missing id", ErrRejected)
	}
	return created.ID, nil
}

// UpdateStatus moves a ledger record to a new status, e.g. marking a
// borrow position Completed after repayment.
func (c *Client) UpdateStatus(ctx context.Context, kind, recordID, status string) error {
	payload := map[string]string{"status": status}
	path := fmt.Sprintf("/%s/%s/status", kind, url.PathEscape(recordID))
	return c.do(ctx, http.MethodPatch, path, payload, nil)
}

// DeleteRecord removes a record entirely. Used by the legacy claim flow
// where a lend position disappears from the ledger once withdrawn.
func (c *Client) DeleteRecord(ctx context.Context, kind, recordID string) error {
	path := fmt.Sprintf("/%s/%s", kind, url.PathEscape(recordID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ListRecords returns the records a wallet participates in, optionally
// filtered by status.
func (c *Client) ListRecords(ctx context.Context, kind, participant, status string) ([]models.LedgerRecord, error) {
	q := url.Values{}
	q.Set("participant", participant)
	if status != "" {
		q.Set("status", status)
	}
	var records []models.LedgerRecord
	if err := c.do(ctx, http.MethodGet, "/"+kind+"?"+q.Encode(), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// CollateralQuote asks the ledger service how much of a collateral token
// backs a requested borrow amount.
func (c *Client) CollateralQuote(ctx context.Context, amount, tokenAddress string) (*models.CollateralQuote, error) {
	payload := map[string]string{
		"amount": amount,
		"token":  tokenAddress,
	}
	var quote models.CollateralQuote
	if err := c.do(ctx, http.MethodPost, "/borrow/request", payload, &quote); err != nil {
		return nil, err
	}
	if quote.CollateralAmount == "" {
		return nil, fmt.Errorf("%w: quote response missing collateral amount", ErrRejected)
	}
	return &quote, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("ledger request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	default:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: bad response body: %v", ErrUnavailable, err)
	}
	return nil
}
