package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/switchboard/internal/call"
)

// Client is a thin REST client for the provider's call-automation API.
// It is constructed once at startup and injected everywhere it is needed.
type Client struct {
	endpoint   string
	accessKey  string
	fromNumber string
	httpClient *http.Client
}

// Config configures the provider client.
type Config struct {
	Endpoint   string
	AccessKey  string
	FromNumber string
	HTTPClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("provider endpoint is required")
	}
	if strings.TrimSpace(cfg.AccessKey) == "" {
		return nil, fmt.Errorf("provider access key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		accessKey:  cfg.AccessKey,
		fromNumber: cfg.FromNumber,
		httpClient: httpClient,
	}, nil
}

type connectionResponse struct {
	CallConnectionID string `json:"callConnectionId"`
}

func (c *Client) CreateCall(ctx context.Context, phoneNumber, callbackURL, streamURL string) (string, error) {
	var res connectionResponse
	err := c.post(ctx, "/calling/calls", map[string]any{
		"targetPhoneNumber": phoneNumber,
		"sourcePhoneNumber": c.fromNumber,
		"callbackUri":       callbackURL,
		"mediaStreaming": map[string]any{
			"transportUrl":  streamURL,
			"transportType": "websocket",
			"contentType":   "audio",
			"audioChannel":  "unmixed",
		},
	}, &res)
	if err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}
	return res.CallConnectionID, nil
}

func (c *Client) AnswerCall(ctx context.Context, incomingContext, callbackURL, streamURL string) (string, error) {
	var res connectionResponse
	err := c.post(ctx, "/calling/calls:answer", map[string]any{
		"incomingCallContext": incomingContext,
		"callbackUri":         callbackURL,
		"mediaStreaming": map[string]any{
			"transportUrl":  streamURL,
			"transportType": "websocket",
			"contentType":   "audio",
			"audioChannel":  "unmixed",
		},
	}, &res)
	if err != nil {
		return "", fmt.Errorf("answer call: %w", err)
	}
	return res.CallConnectionID, nil
}

func (c *Client) PlayText(ctx context.Context, cl *call.Call, text string, style call.Style, contexts []string) error {
	err := c.post(ctx, "/calling/calls/"+cl.ConnectionID+":play", map[string]any{
		"text":             text,
		"style":            string(style),
		"operationContext": encodeContexts(contexts),
	}, nil)
	if err != nil {
		return fmt.Errorf("play text: %w", err)
	}
	return nil
}

func (c *Client) RecognizeIVR(ctx context.Context, cl *call.Call, text string, choices []IVRChoice, contexts []string) error {
	err := c.post(ctx, "/calling/calls/"+cl.ConnectionID+":recognize", map[string]any{
		"text":             text,
		"choices":          choices,
		"operationContext": encodeContexts(contexts),
	}, nil)
	if err != nil {
		return fmt.Errorf("recognize ivr: %w", err)
	}
	return nil
}

func (c *Client) Transfer(ctx context.Context, cl *call.Call, target string) error {
	err := c.post(ctx, "/calling/calls/"+cl.ConnectionID+":transfer", map[string]any{
		"targetPhoneNumber": target,
	}, nil)
	if err != nil {
		return fmt.Errorf("transfer call: %w", err)
	}
	return nil
}

func (c *Client) Hangup(ctx context.Context, cl *call.Call) error {
	if cl.ConnectionID == "" {
		// Call never connected on the provider side, nothing to hang up.
		return nil
	}
	err := c.post(ctx, "/calling/calls/"+cl.ConnectionID+":hangup", map[string]any{
		"forEveryone": true,
	}, nil)
	if err != nil {
		return fmt.Errorf("hangup call: %w", err)
	}
	return nil
}

func (c *Client) StartMediaStreaming(ctx context.Context, cl *call.Call) error {
	err := c.post(ctx, "/calling/calls/"+cl.ConnectionID+":startMediaStreaming", nil, nil)
	if err != nil {
		return fmt.Errorf("start media streaming: %w", err)
	}
	return nil
}

func (c *Client) SendSMS(ctx context.Context, phoneNumber, content string) error {
	err := c.post(ctx, "/sms", map[string]any{
		"from":    c.fromNumber,
		"to":      phoneNumber,
		"message": content,
	}, nil)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("provider returned %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func encodeContexts(contexts []string) string {
	if len(contexts) == 0 {
		return ""
	}
	raw, _ := json.Marshal(contexts)
	return string(raw)
}
