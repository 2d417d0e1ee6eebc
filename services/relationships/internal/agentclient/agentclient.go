// Package agentclient pushes contract-changed events to IoT gateways.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/webhooks"
)

const EventContractChanged = "contract.changed"

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Secret     string
	Timeout    time.Duration

	NewID func() string
	Now   func() time.Time
}

func New(baseURL, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		Secret:     secret,
		Timeout:    timeout,
		NewID:      func() string { return "evt_" + uuid.NewString() },
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// ContractChanged is the body of a push. Gateways re-read the contract on receipt.
type ContractChanged struct {
	GatewayID string    `json:"gateway_id"`
	Ctid      string    `json:"ctid"`
	EventID   string    `json:"event_id"`
	SentAt    time.Time `json:"sent_at"`
}

func (c *Client) NotifyContractChanged(ctx context.Context, gatewayID, ctid string) error {
	ev := ContractChanged{GatewayID: gatewayID, Ctid: ctid, EventID: c.NewID(), SentAt: c.Now()}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	u := fmt.Sprintf("%s/gateways/%s/contracts/%s/changed", c.BaseURL, url.PathEscape(gatewayID), url.PathEscape(ctid))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	webhooks.SetHeaders(req.Header, c.Secret, ev.EventID, EventContractChanged, body)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("push to gateway %s: http %d: %s", gatewayID, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
