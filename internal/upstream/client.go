// Package upstream содержит JSON-клиент для внешних сервисов аптечной системы
// (склад, каталог товаров). Сбои транспорта и неожиданные статусы превращаются в
// *domain.UpstreamError; таймауты и 429/503 помечаются как временные.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/accountancy/internal/domain"
)

// DefaultTimeout — ограничение на один вызов внешнего сервиса.
const DefaultTimeout = 5 * time.Second

// Client выполняет JSON-запросы к одному сервису.
type Client struct {
	service    string
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент; timeout <= 0 заменяется на DefaultTimeout.
func NewClient(service, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Service возвращает имя сервиса, которое попадает в UpstreamError.
func (c *Client) Service() string {
	return c.service
}

// Do отправляет запрос и декодирует тело ответа в out (если out != nil).
// Возвращает HTTP статус; для не-2xx статусов вызывающий решает сам, что это значит,
// ошибкой считается только сбой транспорта или декодирования.
func (c *Client) Do(ctx context.Context, op, method, path string, in, out any) (int, error) {
	var body io.Reader = http.NoBody
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, c.Fail(op, false, fmt.Errorf("marshal payload: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, c.Fail(op, false, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, c.Fail(op, isTimeout(ctx, err), fmt.Errorf("%s unreachable: %w", c.service, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, nil
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, c.Fail(op, false, fmt.Errorf("decode response: %w", err))
		}
	}
	return resp.StatusCode, nil
}

// Fail строит UpstreamError для данного сервиса.
func (c *Client) Fail(op string, temporary bool, err error) error {
	return &domain.UpstreamError{Service: c.service, Op: op, Temporary: temporary, Err: err}
}

// StatusError превращает неожиданный HTTP статус в UpstreamError.
func (c *Client) StatusError(op string, status int) error {
	temporary := status == http.StatusTooManyRequests ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
	return c.Fail(op, temporary, fmt.Errorf("unexpected status %d", status))
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// обрыв соединения тоже имеет смысл повторить
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
