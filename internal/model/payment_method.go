package model

import "strings"

// PaymentMethod 付款方式（封闭枚举）
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodOther        PaymentMethod = "other"
)

var paymentMethodAliases = map[string]PaymentMethod{
	"card":          PaymentMethodCard,
	"stripe_card":   PaymentMethodCard,
	"credit_card":   PaymentMethodCard,
	"debit_card":    PaymentMethodCard,
	"bank_transfer": PaymentMethodBankTransfer,
	"bank":          PaymentMethodBankTransfer,
	"ach":           PaymentMethodBankTransfer,
	"wire":          PaymentMethodBankTransfer,
	"cash":          PaymentMethodCash,
	"check":         PaymentMethodCheck,
	"cheque":        PaymentMethodCheck,
	"other":         PaymentMethodOther,
}

// ParsePaymentMethod 把任意输入映射到规范付款方式，未知值归为 other
func ParsePaymentMethod(raw string) PaymentMethod {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if m, ok := paymentMethodAliases[key]; ok {
		return m
	}
	return PaymentMethodOther
}

// AutoChargeable 是否支持离线自动扣款
func (m PaymentMethod) AutoChargeable() bool {
	return m == PaymentMethodCard
}
