package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Mailer sends deal approval links through the mail relay. Sends are
// fire-and-forget: a failed mail never fails the deal that triggered it.
type Mailer struct {
	relayURL        string
	approvalPageURL string
	httpClient      *http.Client
	log             *zap.Logger
}

func NewMailer(relayURL, approvalPageURL string, log *zap.Logger) *Mailer {
	return &Mailer{
		relayURL:        strings.TrimRight(relayURL, "/"),
		approvalPageURL: strings.TrimRight(approvalPageURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// ApprovalLink builds the page URL a client opens to approve a token
// spend for a deal.
func (m *Mailer) ApprovalLink(client, token, amount, spender string) string {
	q := url.Values{}
	q.Set("client", client)
	q.Set("token", token)
	q.Set("amount", amount)
	q.Set("spender", spender)
	return m.approvalPageURL + "?" + q.Encode()
}

// SendApprovalRequest mails the approval link to the client. Errors are
// logged, not returned.
func (m *Mailer) SendApprovalRequest(ctx context.Context, email, client, token, amount, spender string) {
	link := m.ApprovalLink(client, token, amount, spender)
	payload := map[string]string{
		"to":      email,
		"subject": "Token spend approval requested",
		"body":    fmt.Sprintf("A deal requires your approval to spend %s tokens. Review and approve here: %s", amount, link),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		m.log.Error("mail payload marshal failed", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.relayURL+"/send", bytes.NewReader(data))
	if err != nil {
		m.log.Error("mail request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.log.Warn("approval mail send failed", zap.String("to", email), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		m.log.Warn("mail relay returned error",
			zap.String("to", email),
			zap.Int("status", resp.StatusCode))
		return
	}
	m.log.Info("approval mail sent", zap.String("to", email))
}
