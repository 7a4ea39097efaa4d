package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/qs3c/installment_billing/config"
)

// HTTPClient 生产环境处理方的 REST 客户端
type HTTPClient struct {
	httpClient    *http.Client
	baseURL       string
	secretKey     string
	webhookSecret string
	currency      string
	tolerance     time.Duration
	now           func() time.Time
}

// NewHTTPClient 创建客户端，httpClient 为空时使用带超时的默认客户端
func NewHTTPClient(cfg *config.ProcessorConfig, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout()}
	}
	return &HTTPClient{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
		tolerance:     time.Duration(cfg.SignatureToleranceSeconds) * time.Second,
		now:           time.Now,
	}
}

// CreateCustomer 创建处理方客户
func (c *HTTPClient) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]string{"name": name, "email": email}
	if err := c.post(ctx, "/v1/customers", "", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// ChargeOffSession 使用已保存的支付方式离线扣款
func (c *HTTPClient) ChargeOffSession(ctx context.Context, req *ChargeRequest) (*Charge, error) {
	body := *req
	if body.Currency == "" {
		body.Currency = c.currency
	}
	payload := struct {
		*ChargeRequest
		OffSession bool `json:"off_session"`
		Confirm    bool `json:"confirm"`
	}{ChargeRequest: &body, OffSession: true, Confirm: true}

	var charge Charge
	if err := c.post(ctx, "/v1/charges", req.IdempotencyKey, payload, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

// CreatePaymentLink 创建托管付款链接
func (c *HTTPClient) CreatePaymentLink(ctx context.Context, req *LinkRequest) (*PaymentLink, error) {
	body := *req
	if body.Currency == "" {
		body.Currency = c.currency
	}
	var link PaymentLink
	if err := c.post(ctx, "/v1/payment_links", "", &body, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// VerifyWebhook 校验签名并解析事件
func (c *HTTPClient) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if err := VerifySignature(payload, signatureHeader, c.webhookSecret, c.tolerance, c.now()); err != nil {
		return nil, err
	}
	return ParseEvent(payload)
}

func (c *HTTPClient) post(ctx context.Context, path, idempotencyKey string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("processor %s: %w", path, ctxErr)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("processor %s: %w", path, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrUnavailable, path, err)
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error *Error `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) != nil || apiErr.Error == nil {
			apiErr.Error = &Error{Message: http.StatusText(resp.StatusCode)}
		}
		apiErr.Error.StatusCode = resp.StatusCode
		return apiErr.Error
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
