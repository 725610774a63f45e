package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultGatewayURL is the Expo push endpoint used for ios/android tokens.
	DefaultGatewayURL = "https://exp.host/--/api/v2/push/send"

	// MaxBatchSize is the hard per-request message limit imposed by the
	// gateway. Callers split larger sets before calling SendBatch.
	MaxBatchSize = 100

	defaultGatewayTimeout = 30 * time.Second
)

// ErrBatchTooLarge is returned when a batch exceeds MaxBatchSize.
var ErrBatchTooLarge = errors.New("push batch exceeds gateway limit")

// Message is one gateway push notification.
type Message struct {
	To       string         `json:"to"`
	Title    string         `json:"title,omitempty"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data,omitempty"`
	Sound    string         `json:"sound,omitempty"`
	Priority string         `json:"priority,omitempty"`
}

// Ticket is the gateway's per-message acknowledgement. Status is "ok" or
// "error"; on error Details.Error carries the failure class, e.g.
// "DeviceNotRegistered".
type Ticket struct {
	Status  string         `json:"status"`
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Details *TicketDetails `json:"details,omitempty"`
}

type TicketDetails struct {
	Error string `json:"error,omitempty"`
}

// DeviceNotRegistered means the token is dead and should be dropped.
const DeviceNotRegistered = "DeviceNotRegistered"

type gatewayResponse struct {
	Data []Ticket `json:"data"`
}

// GatewayClient talks to the mobile push gateway. It sends batches as-is and
// never retries; a failed batch surfaces as an error and the caller moves on.
type GatewayClient struct {
	url        string
	httpClient *http.Client
}

func NewGatewayClient(url string) *GatewayClient {
	if url == "" {
		url = DefaultGatewayURL
	}
	return &GatewayClient{
		url:        url,
		httpClient: &http.Client{Timeout: defaultGatewayTimeout},
	}
}

// SendBatch posts up to MaxBatchSize messages in one request and returns one
// ticket per message, in order.
func (c *GatewayClient) SendBatch(ctx context.Context, messages []Message) ([]Ticket, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d messages (max %d)", ErrBatchTooLarge, len(messages), MaxBatchSize)
	}

	body, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send batch: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, respBody)
	}

	var parsed gatewayResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse gateway response: %w", err)
	}
	return parsed.Data, nil
}

// DeadTokens extracts the tokens whose tickets came back DeviceNotRegistered.
// tickets is parallel to messages.
func DeadTokens(messages []Message, tickets []Ticket) []string {
	var dead []string
	for i, t := range tickets {
		if i >= len(messages) {
			break
		}
		if t.Status == "error" && t.Details != nil && t.Details.Error == DeviceNotRegistered {
			dead = append(dead, messages[i].To)
		}
	}
	return dead
}
