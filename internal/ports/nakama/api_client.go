package nakama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/heroiclabs/nakama-common/api"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"tictactoe/internal/config"
)

// StatusError is a non-2xx response from the backend API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Rejected reports whether the server actively refused the request, as
// opposed to a transport failure.
func (e *StatusError) Rejected() bool {
	return e.Code >= 400 && e.Code < 500
}

// ApiClient talks to the backend's HTTP API. Pre-session calls
// authenticate with the server key; session calls use a bearer token.
type ApiClient struct {
	baseURL   string
	serverKey string
	httpc     *http.Client
	logger    *zap.Logger
}

// NewApiClient constructs an ApiClient from client configuration.
func NewApiClient(cfg *config.Config, logger *zap.Logger) *ApiClient {
	return &ApiClient{
		baseURL:   cfg.BaseURL(),
		serverKey: cfg.ServerKey,
		httpc:     &http.Client{Timeout: cfg.RequestTimeout},
		logger:    logger,
	}
}

// AuthenticateDevice exchanges a device id for a session.
func (c *ApiClient) AuthenticateDevice(ctx context.Context, deviceID string, create bool) (*api.Session, error) {
	endpoint := fmt.Sprintf("/v2/account/authenticate/device?create=%t", create)
	body, err := protojson.Marshal(&api.AccountDevice{Id: deviceID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal device account: %w", err)
	}

	session := &api.Session{}
	if err := c.do(ctx, http.MethodPost, endpoint, c.basicAuth(), body, session); err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateAccount sets the display name on the authenticated account.
func (c *ApiClient) UpdateAccount(ctx context.Context, token, displayName string) error {
	body, err := protojson.Marshal(&api.UpdateAccountRequest{
		DisplayName: wrapperspb.String(displayName),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal account update: %w", err)
	}
	return c.do(ctx, http.MethodPut, "/v2/account", bearerAuth(token), body, nil)
}

// SessionRefresh exchanges a refresh token for a fresh session.
func (c *ApiClient) SessionRefresh(ctx context.Context, refreshToken string) (*api.Session, error) {
	body, err := protojson.Marshal(&api.SessionRefreshRequest{Token: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session refresh: %w", err)
	}

	session := &api.Session{}
	if err := c.do(ctx, http.MethodPost, "/v2/account/session/refresh", c.basicAuth(), body, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetAccount fetches the authenticated account.
func (c *ApiClient) GetAccount(ctx context.Context, token string) (*api.Account, error) {
	account := &api.Account{}
	if err := c.do(ctx, http.MethodGet, "/v2/account", bearerAuth(token), nil, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Rpc calls a named server RPC with a JSON payload.
func (c *ApiClient) Rpc(ctx context.Context, token, id string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal rpc payload: %w", err)
	}

	endpoint := fmt.Sprintf("/v2/rpc/%s?unwrap=true", url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build rpc request: %w", err)
	}
	req.Header.Set("Authorization", bearerAuth(token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s failed: %w", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("rpc %s read failed: %w", id, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("rpc %s response unmarshal failed: %w", id, err)
	}
	return nil
}

// do runs one API round trip, decoding a protobuf-mapped JSON response
// into out when provided.
func (c *ApiClient) do(ctx context.Context, method, endpoint, auth string, body []byte, out proto.Message) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("response read failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("api request rejected",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode))
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil {
		return nil
	}

	unmarshaler := protojson.UnmarshalOptions{DiscardUnknown: true}
	if err := unmarshaler.Unmarshal(data, out); err != nil {
		return fmt.Errorf("response unmarshal failed: %w", err)
	}
	return nil
}

func (c *ApiClient) basicAuth() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.serverKey+":"))
}

func bearerAuth(token string) string {
	return "Bearer " + token
}

// errorMessage pulls the human message out of an API error body.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return string(data)
}
