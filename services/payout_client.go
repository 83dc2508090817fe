// tournament-wallet-system/services/payout_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// PayoutClient talks to the external payment processor. The processor is
// opaque to this service: all we need back is a yes/no confirmation and a
// reference for the audit trail.
type PayoutClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

type PayoutConfirmation struct {
	Confirmed bool   `json:"confirmed"`
	Reference string `json:"reference"`
	Detail    string `json:"detail,omitempty"`
}

func NewPayoutClient(baseURL, token string) *PayoutClient {
	return &PayoutClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ConfirmPayout asks the processor to confirm a withdrawal payout. The
// request id makes the call idempotent on the processor side as well.
func (c *PayoutClient) ConfirmPayout(ctx context.Context, requestID, accountID string, amount int64, method string) (*PayoutConfirmation, error) {
	url := fmt.Sprintf("%s/payouts/confirm", c.BaseURL)

	reqBody := map[string]interface{}{
		"request_id": requestID,
		"account_id": accountID,
		"amount":     amount,
		"method":     method,
	}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Printf("PayoutProcessor /payouts/confirm returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("payout confirmation failed: %d", resp.StatusCode)
	}

	var out PayoutConfirmation
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
