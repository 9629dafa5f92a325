package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const recoverPath = "/recover"

// SendPasswordResetEmail asks GoTrue to email a recovery link that lands on
// redirectURL. The SDK's Recover cannot pass redirect_to, so this call is
// made directly.
func (c *Client) SendPasswordResetEmail(ctx context.Context, email, redirectURL string) error {
	u := c.b.baseURL + recoverPath
	if redirectURL != "" {
		u += "?" + url.Values{"redirect_to": {redirectURL}}.Encode()
	}

	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return fmt.Errorf("gotrue: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gotrue: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)

	resp, err := c.b.http.Do(req)
	if err != nil {
		return fmt.Errorf("gotrue: recover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return newProviderError(resp.StatusCode, raw)
	}
	return nil
}
