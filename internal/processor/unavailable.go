package processor

import (
	"context"
)

// Unavailable 未接入处理方的环境：扣款一律失败，付款链接退化为固定的线下付款页
type Unavailable struct {
	fallbackURL string
}

func NewUnavailable(fallbackURL string) *Unavailable {
	return &Unavailable{fallbackURL: fallbackURL}
}

func (u *Unavailable) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	return "", ErrUnavailable
}

func (u *Unavailable) ChargeOffSession(ctx context.Context, req *ChargeRequest) (*Charge, error) {
	return nil, ErrUnavailable
}

// CreatePaymentLink 返回配置的固定付款页
func (u *Unavailable) CreatePaymentLink(ctx context.Context, req *LinkRequest) (*PaymentLink, error) {
	if u.fallbackURL == "" {
		return nil, ErrUnavailable
	}
	return &PaymentLink{URL: u.fallbackURL}, nil
}

func (u *Unavailable) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	return nil, ErrInvalidSignature
}
