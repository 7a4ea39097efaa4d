// Package processor 封装外部银行卡支付处理方：创建客户、离线扣款、托管付款链接与回调验签。
// 每个运行环境一个实现，由 New 在构造时根据配置选定。
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/qs3c/installment_billing/config"
)

// ChargeStatus 扣款结果状态
type ChargeStatus string

const (
	ChargeSucceeded      ChargeStatus = "succeeded"
	ChargeRequiresAction ChargeStatus = "requires_action"
	ChargeFailed         ChargeStatus = "failed"
)

// 回调事件类型
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentSucceeded  = "payment_intent.succeeded"
)

// Processor 支付处理方能力
type Processor interface {
	CreateCustomer(ctx context.Context, name, email string) (string, error)
	ChargeOffSession(ctx context.Context, req *ChargeRequest) (*Charge, error)
	CreatePaymentLink(ctx context.Context, req *LinkRequest) (*PaymentLink, error)
	VerifyWebhook(payload []byte, signatureHeader string) (*Event, error)
}

// ChargeRequest 离线扣款请求
type ChargeRequest struct {
	CustomerID      string            `json:"customer"`
	PaymentMethodID string            `json:"payment_method"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	Description     string            `json:"description,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	IdempotencyKey  string            `json:"-"`
}

// Charge 扣款结果
type Charge struct {
	ID             string       `json:"id"`
	Status         ChargeStatus `json:"status"`
	Amount         int64        `json:"amount"`
	DeclineCode    string       `json:"decline_code,omitempty"`
	FailureMessage string       `json:"failure_message,omitempty"`
}

// LineItem 付款链接中的一行
type LineItem struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

// LinkRequest 创建托管付款链接请求
type LinkRequest struct {
	Items       []LineItem        `json:"line_items"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	RedirectURL string            `json:"redirect_url,omitempty"`
}

// Total 链接总金额
func (r *LinkRequest) Total() int64 {
	var total int64
	for _, item := range r.Items {
		total += item.Amount
	}
	return total
}

// PaymentLink 托管付款链接
type PaymentLink struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Event 已验签的回调事件
type Event struct {
	ID       string
	Type     string
	Created  time.Time
	ObjectID string
	Amount   int64
	Metadata map[string]string
}

// New 根据配置模式构造处理方实现
func New(cfg *config.ProcessorConfig) (Processor, error) {
	switch cfg.Mode {
	case config.ProcessorModeLive:
		if cfg.BaseURL == "" || cfg.SecretKey == "" {
			return nil, fmt.Errorf("processor: live mode requires base_url and secret_key")
		}
		return NewHTTPClient(cfg, nil), nil
	case config.ProcessorModeSandbox:
		return OpenSandbox(cfg)
	case config.ProcessorModeDisabled:
		return NewUnavailable(cfg.FallbackLinkURL), nil
	default:
		return nil, fmt.Errorf("processor: unknown mode %q", cfg.Mode)
	}
}
