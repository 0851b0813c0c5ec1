package chain

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ed25519 private keys travel as hex with the standard DER prefix, the form
// Hedera tooling expects.
const hederaKeyDERPrefix = "302e020100300506032b657004220420"

// HederaClient talks to a Hedera gateway service that wraps account creation
// and transfer submission on the Hedera network.
type HederaClient struct {
	baseURL string
	http    *http.Client
}

var _ Provider = (*HederaClient)(nil)

// NewHederaClient constructs a client for the given gateway base URL.
func NewHederaClient(baseURL string) (*HederaClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("chain: hedera gateway URL is required")
	}
	return &HederaClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (c *HederaClient) Network() string { return NetworkHedera }

// CreateAccount generates an ed25519 keypair locally and asks the gateway to
// create a Hedera account owned by its public key. Only the public half goes
// over the wire.
func (c *HederaClient) CreateAccount(ctx context.Context) (Account, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Account{}, err
	}

	body, err := json.Marshal(map[string]string{
		"public_key": hex.EncodeToString(pub),
	})
	if err != nil {
		return Account{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/accounts", bytes.NewReader(body))
	if err != nil {
		return Account{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return Account{}, fmt.Errorf("chain: create hedera account: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode >= 300 {
		return Account{}, fmt.Errorf("chain: create hedera account: status %d", resp.StatusCode)
	}

	var payload struct {
		AccountID string `json:"account_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Account{}, err
	}
	if payload.AccountID == "" {
		return Account{}, errors.New("chain: gateway returned no account id")
	}

	return Account{
		AccountID:  payload.AccountID,
		PrivateKey: hederaKeyDERPrefix + hex.EncodeToString(priv.Seed()),
		Network:    NetworkHedera,
	}, nil
}

func (c *HederaClient) GetBalances(ctx context.Context, accountID string) ([]Balance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/accounts/"+url.PathEscape(accountID)+"/balance", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chain: hedera balances: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrAccountNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("chain: hedera balances: status %d", resp.StatusCode)
	}

	var payload struct {
		Hbars  string            `json:"hbars"`
		Tokens map[string]string `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	out := []Balance{{Asset: "HBAR", Amount: payload.Hbars}}
	for token, amount := range payload.Tokens {
		out = append(out, Balance{Asset: token, Amount: amount})
	}
	return out, nil
}

func (c *HederaClient) SubmitPayment(ctx context.Context, p Payment) (string, error) {
	if p.SourceKey == "" {
		return "", errors.New("chain: source key is required")
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
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chain: submit hedera transfer: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusNotFound {
		return "", ErrAccountNotFound
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("chain: submit hedera transfer: status %d", resp.StatusCode)
	}

	var payload struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	return payload.TransactionID, nil
}
