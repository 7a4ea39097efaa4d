package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("无效的金额")

var symbols = map[string]string{
	"usd": "$",
	"cad": "$",
	"aud": "$",
	"eur": "€",
	"gbp": "£",
}

// Format 把最小货币单位格式化为展示金额，如 165000 → "$1,650.00"
func Format(minor int64, currency string) string {
	d := decimal.New(minor, -2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}

	text := d.StringFixed(2)
	whole, frac, _ := strings.Cut(text, ".")
	whole = group(whole)

	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sign + sym + whole + "." + frac
	}
	return sign + whole + "." + frac + " " + strings.ToUpper(currency)
}

// Parse 解析主单位金额字符串，如 "16.50" → 1650
func Parse(major string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(strings.ReplaceAll(major, ",", "")))
	if err != nil {
		return 0, ErrInvalidAmount
	}
	minor := d.Shift(2)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
