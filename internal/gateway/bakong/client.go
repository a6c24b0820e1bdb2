package bakong

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"genzstore/internal/gateway"
	"genzstore/internal/status"
)

type ClientConfig struct {
	BaseURL  string `json:"baseUrl" mapstructure:"base_url"`
	Email    string `json:"email" mapstructure:"email"`
	APIToken string `json:"apiToken" mapstructure:"api_token"`
}

type Client struct {
	// baseURL is the base url of the Bakong open API.
	baseURL string

	// email is the registered developer account the token is renewed for.
	email string

	// accessToken is used to authenticate with the Bakong open API.
	accessToken string

	// mu is used to lock access token.
	mu sync.Mutex

	// toggleTokenRefresher is used to notify token refresher to refresh token.
	toggleTokenRefresher chan struct{}

	// hc is the http client.
	hc *http.Client
}

// newClient creates a new instance of the Bakong open API client.
func newClient(_ context.Context, c *ClientConfig) *Client {
	return &Client{
		baseURL:     c.BaseURL,
		email:       c.Email,
		accessToken: c.APIToken,

		// make a buffered channel to avoid blocking.
		toggleTokenRefresher: make(chan struct{}, 1),

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// notifyAccessTokenExpired do infinite loop with period of time
// to perform auto renew token from the Bakong open API with
// exponential backOff strategy. Bakong tokens are long lived, so the
// ticker is slow and the unauthorized toggle does the real work.
func (c *Client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
			log.Println("notifyAccessTokenExpired: toggleTokenRefresher => token refreshed")
		}

		// reconnect with exponential backOff strategy
		backOff := time.Second

	Retry:
		for {
			token, err := c.renewToken(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)

				break Retry

			default:
				log.Printf("notifyAccessTokenExpired: %v", err)
				select {
				case <-ctx.Done():
					return

				case <-time.After(backOff):
					backOff *= 2
				}
			}
		}
	}
}

// setAccessToken set access token to client.
func (c *Client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

// getAccessToken get access token from client.
func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// renewToken makes http call to renew the bearer token with the Bakong open API.
func (c *Client) renewToken(ctx context.Context) (string, error) {
	body := fmt.Sprintf(`{"email":%q}`, c.email)
	bodyReader := bytes.NewReader([]byte(body))

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/v1/renew_token"), bodyReader)
	if err != nil {
		return "", fmt.Errorf("renewToken: http.NewReq: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("renewToken: http.Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("renewToken: resp.StatusCode: %v", resp.StatusCode)
	}

	var reply struct {
		ResponseCode    int    `json:"responseCode"`
		ResponseMessage string `json:"responseMessage"`
		Data            struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return "", fmt.Errorf("renewToken: json.Decode: %v", err)
	}
	if reply.ResponseCode != 0 {
		return "", fmt.Errorf("renewToken: reply.ResponseCode: %v, reply.ResponseMessage: %v", reply.ResponseCode, reply.ResponseMessage)
	}

	return reply.Data.Token, nil
}

// checkTransactionByMD5 looks a payment up by the md5 of its KHQR payload.
// responseCode 1 means the transaction has not been seen yet, which is a
// status.ErrTransactionNotFound, not a hard failure.
func (c *Client) checkTransactionByMD5(ctx context.Context, md5Hash string) (*status.Transaction, error) {
	body := fmt.Sprintf(`{"md5":%q}`, md5Hash)
	bodyReader := bytes.NewReader([]byte(body))

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/v1/check_transaction_by_md5"), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("checkTransactionByMD5: http.NewReq: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.getAccessToken()))

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkTransactionByMD5: http.Do: %w", status.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	// toggle token refresher if unauthorized
	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return nil, errors.New("checkTransactionByMD5: resp.StatusCode: 401 => Unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("checkTransactionByMD5: resp.StatusCode: %v: %w", resp.StatusCode, status.ErrGatewayUnavailable)
	}

	var reply struct {
		ResponseCode    int    `json:"responseCode"`
		ResponseMessage string `json:"responseMessage"`
		Data            struct {
			Hash          string          `json:"hash"`
			FromAccountID string          `json:"fromAccountId"`
			ToAccountID   string          `json:"toAccountId"`
			Currency      string          `json:"currency"`
			Amount        decimal.Decimal `json:"amount"`
			Description   string          `json:"description"`
			ExternalRef   string          `json:"externalRef"`
			CreatedDateMS int64           `json:"createdDateMs"`
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("checkTransactionByMD5: json.Decode: %v", err)
	}
	if reply.ResponseCode != 0 {
		return nil, status.ErrTransactionNotFound
	}

	return &status.Transaction{
		RefID:      md5Hash,
		BillNumber: reply.Data.ExternalRef,
		Amount:     reply.Data.Amount,
		Ccy:        reply.Data.Currency,
		Payer:      reply.Data.FromAccountID,
		Provider:   string(gateway.ProviderBakong),
		PaidAt:     time.UnixMilli(reply.Data.CreatedDateMS),
	}, nil
}
