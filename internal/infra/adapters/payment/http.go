package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/infra/metrics"
)

const maxBodyBytes = 1 << 20

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// send performs req and returns the status and body. Transport failures become
// *domain.NetworkError; the caller interprets the status.
func send(client *http.Client, provider model.Provider, op string, req *http.Request) (int, []byte, error) {
	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		metrics.ObserveGatewayCall(string(provider), op, started, false)
		return 0, nil, &domain.NetworkError{Provider: string(provider), Op: op, Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.ObserveGatewayCall(string(provider), op, started, false)
		// the provider has seen the request; never replay
		return resp.StatusCode, nil, &domain.NetworkError{Provider: string(provider), Op: op, Timeout: true, Err: err}
	}
	metrics.ObserveGatewayCall(string(provider), op, started, resp.StatusCode < 300)
	return resp.StatusCode, body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func newJSONRequest(ctx context.Context, endpoint string, payload any) (*http.Request, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func newFormRequest(ctx context.Context, endpoint string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func is2xx(status int) bool { return status >= 200 && status < 300 }

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	return nil
}

func (f flexString) String() string { return string(f) }

func (f flexString) Int() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(f)))
	return n, err == nil
}

// decodeFields flattens a JSON object or a form body into string fields.
func decodeFields(header http.Header, body []byte) (map[string]string, error) {
	ct, _, _ := mime.ParseMediaType(header.Get("Content-Type"))
	trimmed := bytes.TrimSpace(body)
	if ct == "application/json" || (ct == "" && len(trimmed) > 0 && trimmed[0] == '{') {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, domain.ErrMalformedWebhook
		}
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			var fs flexString
			if err := json.Unmarshal(v, &fs); err == nil {
				out[k] = fs.String()
			}
		}
		return out, nil
	}
	values, err := url.ParseQuery(string(trimmed))
	if err != nil {
		return nil, domain.ErrMalformedWebhook
	}
	out := make(map[string]string, len(values))
	for k := range values {
		out[k] = values.Get(k)
	}
	return out, nil
}

// firstOf returns the first non-empty field among keys.
func firstOf(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(fields[k]); v != "" {
			return v
		}
	}
	return ""
}

// parseAmount reads a provider amount ("5000", "5000.00", 5000) truncating decimals.
func parseAmount(s string) int64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return d.IntPart()
}

func parseTokens(s string) *int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
