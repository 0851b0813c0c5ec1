package chain

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StellarClient talks to a Stellar gateway (Horizon plus a signing proxy for
// payment submission). Account keypairs are generated locally; the private
// seed leaves this process only via the key escrow.
type StellarClient struct {
	baseURL string
	http    *http.Client
}

var _ Provider = (*StellarClient)(nil)

// NewStellarClient constructs a client for the given gateway base URL.
func NewStellarClient(baseURL string) (*StellarClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("chain: stellar gateway URL is required")
	}
	return &StellarClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (c *StellarClient) Network() string { return NetworkStellar }

// CreateAccount generates an ed25519 keypair, registers the account with the
// gateway (friendbot-style funding on test networks) and returns both halves
// strkey-encoded.
func (c *StellarClient) CreateAccount(ctx context.Context) (Account, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Account{}, err
	}
	accountID := encodeStrkey(versionAccountID, pub)
	seed := encodeStrkey(versionSeed, priv.Seed())

	u := c.baseURL + "/friendbot?addr=" + url.QueryEscape(accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Account{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Account{}, fmt.Errorf("chain: fund stellar account: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode >= 300 {
		return Account{}, fmt.Errorf("chain: fund stellar account: status %d", resp.StatusCode)
	}

	return Account{AccountID: accountID, PrivateKey: seed, Network: NetworkStellar}, nil
}

func (c *StellarClient) GetBalances(ctx context.Context, accountID string) ([]Balance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/accounts/"+url.PathEscape(accountID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chain: stellar balances: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrAccountNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("chain: stellar balances: status %d", resp.StatusCode)
	}

	var payload struct {
		Balances []struct {
			Balance   string `json:"balance"`
			AssetType string `json:"asset_type"`
			AssetCode string `json:"asset_code"`
		} `json:"balances"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	out := make([]Balance, 0, len(payload.Balances))
	for _, b := range payload.Balances {
		asset := b.AssetCode
		if b.AssetType == "native" {
			asset = "XLM"
		}
		out = append(out, Balance{Asset: asset, Amount: b.Balance})
	}
	return out, nil
}

func (c *StellarClient) SubmitPayment(ctx context.Context, p Payment) (string, error) {
	if p.SourceKey == "" {
		return "", errors.New("chain: source key is required")
	}
	if _, err := decodeStrkey(versionSeed, p.SourceKey); err != nil {
		return "", fmt.Errorf("chain: invalid stellar seed: %w", err)
	}
	body, err := json.Marshal(map[string]string{
		"from":       p.From,
		"to":         p.To,
		"asset":      p.Asset,
		"amount":     p.Amount,
		"memo":       p.Memo,
		"source_key": p.SourceKey,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chain: submit stellar payment: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusNotFound {
		return "", ErrAccountNotFound
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("chain: submit stellar payment: status %d", resp.StatusCode)
	}

	var payload struct {
		Hash string `json:"hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	return payload.Hash, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}
