package gotrue

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/enterprise-hub/account-service/internal/core/domain"
)

const sdkStatusPrefix = "response status code "

// errorResponse covers both the legacy OAuth-style and the current GoTrue
// error shapes.
type errorResponse struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func newProviderError(status int, body []byte) *domain.ProviderError {
	var er errorResponse
	_ = json.Unmarshal(body, &er)
	msg := er.text()
	if msg == "" {
		msg = http.StatusText(status)
	}
	code := er.ErrorCode
	if code == "" {
		code = er.Error
	}
	return &domain.ProviderError{StatusCode: status, ErrorCode: code, Message: msg}
}

// providerError turns the SDK's "response status code N: body" errors into
// *domain.ProviderError. Transport failures are wrapped unchanged.
func providerError(err error) error {
	if err == nil {
		return nil
	}
	text := err.Error()
	if !strings.HasPrefix(text, sdkStatusPrefix) {
		return fmt.Errorf("gotrue: %w", err)
	}
	var status int
	if _, scanErr := fmt.Sscanf(text, sdkStatusPrefix+"%d", &status); scanErr != nil || status == 0 {
		return fmt.Errorf("gotrue: %w", err)
	}
	var body string
	if i := strings.Index(text, ": "); i >= 0 {
		body = text[i+2:]
	}
	return newProviderError(status, []byte(body))
}
