package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// HTTPChecker issues remote checks over HTTP. GET requests carry the payload as
// query parameters, other methods as a JSON body.
type HTTPChecker struct {
	url    string
	method string
	client *http.Client
}

// NewHTTPChecker constructs a checker; a nil client uses http.DefaultClient.
func NewHTTPChecker(endpoint, method string, client *http.Client) *HTTPChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPChecker{
		url:    strings.TrimSpace(endpoint),
		method: strings.ToUpper(strings.TrimSpace(method)),
		client: client,
	}
}

// Check sends the request and decodes the JSON response body.
func (c *HTTPChecker) Check(ctx context.Context, req Request) (any, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckFailed, err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrCheckFailed, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrCheckFailed, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrCheckFailed, err)
	}
	return out, nil
}

func (c *HTTPChecker) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	payload := buildPayload(req)

	if c.method == http.MethodGet {
		target, err := url.Parse(c.url)
		if err != nil {
			return nil, err
		}
		query := target.Query()
		for key, value := range encodeQuery(payload) {
			for _, v := range value {
				query.Add(key, v)
			}
		}
		target.RawQuery = query.Encode()
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Accept", "application/json")
		return httpReq, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, c.method, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	return httpReq, nil
}

// buildPayload mirrors what callbacks receive: the parameter bag, the value
// under the field name, and explicit fieldName/value/name keys.
func buildPayload(req Request) map[string]any {
	params := req.Params
	if params == nil {
		params = map[string]any{}
	}
	payload := map[string]any{
		"params":    params,
		"fieldName": req.Name,
		"value":     req.Value,
		"name":      req.Name,
	}
	if req.Name != "" {
		payload[req.Name] = req.Value
	}
	return payload
}

func encodeQuery(payload map[string]any) url.Values {
	values := url.Values{}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if params, ok := payload[key].(map[string]any); ok {
			inner := make([]string, 0, len(params))
			for k := range params {
				inner = append(inner, k)
			}
			sort.Strings(inner)
			for _, k := range inner {
				values.Add(key+"["+k+"]", stringify(params[k]))
			}
			continue
		}
		values.Add(key, stringify(payload[key]))
	}
	return values
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
