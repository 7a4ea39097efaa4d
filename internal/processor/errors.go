package processor

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrIdempotencyConflict = errors.New("processor: idempotency key reused with different parameters")
	ErrInvalidCustomer     = errors.New("processor: customer is invalid or missing")
	ErrInvalidSignature    = errors.New("processor: invalid webhook signature")
	ErrUnavailable         = errors.New("processor: service unavailable")
	ErrCardDeclined        = errors.New("processor: card declined")
)

// 处理方错误码
const (
	CodeIdempotencyConflict = "idempotency_key_in_use"
	CodeInvalidCustomer     = "customer_invalid"
	CodeResourceMissing     = "resource_missing"
	CodeCardDeclined        = "card_declined"
	CodeInvalidPayment      = "payment_method_invalid"
)

// Error 处理方返回的结构化错误
type Error struct {
	StatusCode  int    `json:"-"`
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code,omitempty"`
	Param       string `json:"param,omitempty"`
	Message     string `json:"message"`
}

func (e *Error) Error() string {
	if e.DeclineCode != "" {
		return fmt.Sprintf("processor error %d %s (%s): %s", e.StatusCode, e.Code, e.DeclineCode, e.Message)
	}
	return fmt.Sprintf("processor error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Is 把错误码映射到哨兵错误，调用方统一使用 errors.Is 判断
func (e *Error) Is(target error) bool {
	switch target {
	case ErrIdempotencyConflict:
		return e.Code == CodeIdempotencyConflict || e.StatusCode == http.StatusConflict
	case ErrInvalidCustomer:
		return e.Code == CodeInvalidCustomer || (e.Code == CodeResourceMissing && e.Param == "customer")
	case ErrUnavailable:
		return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
	case ErrCardDeclined:
		return e.Code == CodeCardDeclined
	}
	return false
}
