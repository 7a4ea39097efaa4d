package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader 回调请求中携带签名的请求头
const SignatureHeader = "Processor-Signature"

// Sign 生成 "t=<unix>,v1=<hex>" 形式的回调签名，签名内容为 "<unix>.<payload>"
func Sign(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + computeHMAC(ts, payload, secret)
}

// VerifySignature 校验签名与时间窗口，tolerance 为 0 时不检查时间
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" || header == "" {
		return ErrInvalidSignature
	}

	var ts string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if ts == "" || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(unix, 0))
		if age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
		}
	}

	expected, _ := hex.DecodeString(computeHMAC(ts, payload, secret))
	for _, sig := range signatures {
		sigBytes, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, sigBytes) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func computeHMAC(ts string, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// 回调事件的线上格式
type eventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object eventObject `json:"object"`
	} `json:"data"`
}

type eventObject struct {
	ID          string            `json:"id"`
	Amount      int64             `json:"amount,omitempty"`
	AmountTotal int64             `json:"amount_total,omitempty"`
	Metadata    map[string]string `json:"metadata"`
}

// ParseEvent 解析回调事件（不验签）
func ParseEvent(payload []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, fmt.Errorf("decode event: missing id or type")
	}

	amount := env.Data.Object.AmountTotal
	if amount == 0 {
		amount = env.Data.Object.Amount
	}
	metadata := env.Data.Object.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	// 缺少 created 时保持零值，由调用方回落到当前时间
	var created time.Time
	if env.Created > 0 {
		created = time.Unix(env.Created, 0).UTC()
	}

	return &Event{
		ID:       env.ID,
		Type:     env.Type,
		Created:  created,
		ObjectID: env.Data.Object.ID,
		Amount:   amount,
		Metadata: metadata,
	}, nil
}

// EncodeEvent 生成回调事件的线上格式，供沙箱与测试构造事件
func EncodeEvent(e *Event) ([]byte, error) {
	var env eventEnvelope
	env.ID = e.ID
	env.Type = e.Type
	if !e.Created.IsZero() {
		env.Created = e.Created.Unix()
	}
	env.Data.Object = eventObject{
		ID:          e.ObjectID,
		AmountTotal: e.Amount,
		Metadata:    e.Metadata,
	}
	return json.Marshal(env)
}
