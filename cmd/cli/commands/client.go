package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"finetune-backend/pkg/api"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

const requestTimeout = 2 * time.Minute

// Client wraps the /api/v1 endpoints of the backend.
type Client struct {
	client *resty.Client

	// stream has no timeout: http.Client.Timeout covers reading the body, and
	// an event stream stays open for as long as the fine-tune runs. It ends
	// with the server or with ctx.
	stream *resty.Client
}

func NewClient(baseURL string) *Client {
	return newClient(baseURL, requestTimeout)
}

func newClient(baseURL string, timeout time.Duration) *Client {
	base := strings.TrimSuffix(baseURL, "/") + "/api/v1"
	return &Client{
		client: resty.New().SetBaseURL(base).SetTimeout(timeout),
		stream: resty.New().SetBaseURL(base),
	}
}

func checkResponse(res *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if res.IsError() {
		return &APIError{StatusCode: res.StatusCode(), Message: strings.TrimSpace(res.String())}
	}
	return nil
}

func (c *Client) CreateFineTune(ctx context.Context, req api.CreateFineTuneRequest) (uuid.UUID, error) {
	var result api.CreateFineTuneResponse
	res, err := c.client.R().SetContext(ctx).SetBody(req).SetResult(&result).Post("/finetunes")
	if err := checkResponse(res, err); err != nil {
		return uuid.Nil, err
	}
	return result.FineTuneId, nil
}

func (c *Client) ListFineTunes(ctx context.Context, status string, limit int) ([]api.FineTune, error) {
	var result []api.FineTune
	req := c.client.R().SetContext(ctx).SetResult(&result)
	if status != "" {
		req.SetQueryParam("status", status)
	}
	if limit > 0 {
		req.SetQueryParam("limit", fmt.Sprint(limit))
	}
	if err := checkResponse(req.Get("/finetunes")); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) GetFineTune(ctx context.Context, id string) (api.FineTune, error) {
	var result api.FineTune
	res, err := c.client.R().SetContext(ctx).SetResult(&result).SetPathParam("id", id).Get("/finetunes/{id}")
	if err := checkResponse(res, err); err != nil {
		return api.FineTune{}, err
	}
	return result, nil
}

func (c *Client) GetStatus(ctx context.Context, id string) (string, error) {
	var result api.FineTuneStatus
	res, err := c.client.R().SetContext(ctx).SetResult(&result).SetPathParam("id", id).Get("/finetunes/{id}/status")
	if err := checkResponse(res, err); err != nil {
		return "", err
	}
	return result.Status, nil
}

func (c *Client) GetEvents(ctx context.Context, id string) ([]api.FineTuneEvent, error) {
	var result []api.FineTuneEvent
	res, err := c.client.R().SetContext(ctx).SetResult(&result).SetPathParam("id", id).Get("/finetunes/{id}/events")
	if err := checkResponse(res, err); err != nil {
		return nil, err
	}
	return result, nil
}

type streamMessage struct {
	Data  api.FineTuneEvent
	Error string
	Code  int
}

// StreamEvents calls handle for every event until the server closes the
// stream, ctx is cancelled, or handle returns an error.
func (c *Client) StreamEvents(ctx context.Context, id string, handle func(api.FineTuneEvent) error) error {
	res, err := c.stream.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetPathParam("id", id).
		Get("/finetunes/{id}/events/stream")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.StatusCode() != http.StatusOK {
		var msg strings.Builder
		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			msg.WriteString(scanner.Text())
		}
		return &APIError{StatusCode: res.StatusCode(), Message: msg.String()}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg streamMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return fmt.Errorf("invalid stream message: %w", err)
		}
		if msg.Error != "" {
			return &APIError{StatusCode: msg.Code, Message: msg.Error}
		}
		if err := handle(msg.Data); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error reading event stream: %w", err)
	}
	return ctx.Err()
}

func (c *Client) GetModel(ctx context.Context, id string) (api.ModelNameResponse, error) {
	var result api.ModelNameResponse
	res, err := c.client.R().SetContext(ctx).SetResult(&result).SetPathParam("id", id).Get("/finetunes/{id}/model")
	if err := checkResponse(res, err); err != nil {
		return api.ModelNameResponse{}, err
	}
	return result, nil
}

func (c *Client) Complete(ctx context.Context, id string, req api.CompletionRequest) (string, error) {
	var result api.CompletionResponse
	res, err := c.client.R().SetContext(ctx).SetBody(req).SetResult(&result).SetPathParam("id", id).Post("/finetunes/{id}/completions")
	if err := checkResponse(res, err); err != nil {
		return "", err
	}
	return result.Text, nil
}
