package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/qs3c/installment_billing/config"
)

var (
	bucketCustomers = []byte("customers")
	bucketCharges   = []byte("charges")
	bucketLinks     = []byte("payment_links")
)

// 沙箱中触发特定结果的支付方式后缀
const (
	SandboxDeclineSuffix      = "_decline"
	SandboxInsufficientSuffix = "_insufficient"
	SandboxActionSuffix       = "_action"
)

// Sandbox 非生产环境使用的本地处理方，状态持久化在 BoltDB 文件中。
// 同一幂等键配相同请求返回同一笔扣款，配不同请求返回 ErrIdempotencyConflict。
type Sandbox struct {
	path          string
	webhookSecret string
	currency      string
	linkBaseURL   string
	tolerance     time.Duration
	now           func() time.Time
}

type sandboxCustomer struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Created time.Time `json:"created"`
}

type sandboxCharge struct {
	RequestHash string            `json:"request_hash"`
	Charge      Charge            `json:"charge"`
	Metadata    map[string]string `json:"metadata"`
	Created     time.Time         `json:"created"`
}

type sandboxLink struct {
	Link     PaymentLink       `json:"link"`
	Amount   int64             `json:"amount"`
	Metadata map[string]string `json:"metadata"`
	Paid     bool              `json:"paid"`
}

// OpenSandbox 创建沙箱数据文件及其桶。数据文件在每次操作时单独打开，
// 服务进程、worker 与命令行可以共用同一个沙箱。
func OpenSandbox(cfg *config.ProcessorConfig) (*Sandbox, error) {
	path := cfg.SandboxPath
	if path == "" {
		path = "processor_sandbox.db"
	}

	linkBase := strings.TrimRight(cfg.BaseURL, "/")
	if linkBase == "" {
		linkBase = "https://sandbox.pay.local"
	}

	s := &Sandbox{
		path:          path,
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
		linkBaseURL:   linkBase,
		tolerance:     time.Duration(cfg.SignatureToleranceSeconds) * time.Second,
		now:           time.Now,
	}

	err := s.update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCustomers, bucketCharges, bucketLinks} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open sandbox %s: %w", path, err)
	}
	return s, nil
}

// Close 数据文件不常驻打开，无需释放
func (s *Sandbox) Close() error {
	return nil
}

func (s *Sandbox) open() (*bolt.DB, error) {
	return bolt.Open(s.path, 0600, &bolt.Options{Timeout: 5 * time.Second})
}

func (s *Sandbox) update(fn func(tx *bolt.Tx) error) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(fn)
}

func (s *Sandbox) view(fn func(tx *bolt.Tx) error) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.View(fn)
}

// CreateCustomer 创建沙箱客户
func (s *Sandbox) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	c := sandboxCustomer{
		ID:      "cus_" + compactUUID(),
		Name:    name,
		Email:   email,
		Created: s.now().UTC(),
	}
	err := s.update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketCustomers), c.ID, c)
	})
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// ChargeOffSession 模拟离线扣款
func (s *Sandbox) ChargeOffSession(ctx context.Context, req *ChargeRequest) (*Charge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.IdempotencyKey == "" {
		return nil, &Error{StatusCode: http.StatusBadRequest, Type: "invalid_request_error", Code: "parameter_missing", Param: "idempotency_key", Message: "idempotency key is required"}
	}

	hash := requestHash(req, s.currency)
	var result *Charge

	err := s.update(func(tx *bolt.Tx) error {
		charges := tx.Bucket(bucketCharges)

		var existing sandboxCharge
		found, err := getJSON(charges, req.IdempotencyKey, &existing)
		if err != nil {
			return err
		}
		if found {
			if existing.RequestHash != hash {
				return &Error{StatusCode: http.StatusConflict, Type: "idempotency_error", Code: CodeIdempotencyConflict, Message: "keys for idempotent requests can only be used with the same parameters"}
			}
			result = &existing.Charge
			return nil
		}

		if tx.Bucket(bucketCustomers).Get([]byte(req.CustomerID)) == nil {
			return &Error{StatusCode: http.StatusBadRequest, Type: "invalid_request_error", Code: CodeResourceMissing, Param: "customer", Message: "no such customer: " + req.CustomerID}
		}
		if !strings.HasPrefix(req.PaymentMethodID, "pm_") {
			return &Error{StatusCode: http.StatusBadRequest, Type: "invalid_request_error", Code: CodeInvalidPayment, Param: "payment_method", Message: "no such payment method: " + req.PaymentMethodID}
		}

		charge := Charge{
			ID:     "ch_" + compactUUID(),
			Amount: req.Amount,
			Status: ChargeSucceeded,
		}
		switch {
		case strings.HasSuffix(req.PaymentMethodID, SandboxDeclineSuffix):
			charge.Status = ChargeFailed
			charge.DeclineCode = "generic_decline"
			charge.FailureMessage = "Your card was declined."
		case strings.HasSuffix(req.PaymentMethodID, SandboxInsufficientSuffix):
			charge.Status = ChargeFailed
			charge.DeclineCode = "insufficient_funds"
			charge.FailureMessage = "Your card has insufficient funds."
		case strings.HasSuffix(req.PaymentMethodID, SandboxActionSuffix):
			charge.Status = ChargeRequiresAction
		}

		result = &charge
		return putJSON(charges, req.IdempotencyKey, sandboxCharge{
			RequestHash: hash,
			Charge:      charge,
			Metadata:    req.Metadata,
			Created:     s.now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Status == ChargeFailed {
		return nil, &Error{
			StatusCode:  http.StatusPaymentRequired,
			Type:        "card_error",
			Code:        CodeCardDeclined,
			DeclineCode: result.DeclineCode,
			Message:     result.FailureMessage,
		}
	}
	return result, nil
}

// CreatePaymentLink 创建沙箱付款链接
func (s *Sandbox) CreatePaymentLink(ctx context.Context, req *LinkRequest) (*PaymentLink, error) {
	if len(req.Items) == 0 {
		return nil, &Error{StatusCode: http.StatusBadRequest, Type: "invalid_request_error", Code: "parameter_missing", Param: "line_items", Message: "at least one line item is required"}
	}

	id := "plink_" + compactUUID()
	link := PaymentLink{ID: id, URL: s.linkBaseURL + "/pay/" + id}

	err := s.update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketLinks), id, sandboxLink{
			Link:     link,
			Amount:   req.Total(),
			Metadata: req.Metadata,
		})
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// VerifyWebhook 校验签名并解析事件
func (s *Sandbox) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if err := VerifySignature(payload, signatureHeader, s.webhookSecret, s.tolerance, s.now()); err != nil {
		return nil, err
	}
	return ParseEvent(payload)
}

// PayLink 模拟家长通过链接完成付款，返回签名后的 checkout.session.completed 回调
func (s *Sandbox) PayLink(linkID string) ([]byte, string, error) {
	var stored sandboxLink
	err := s.update(func(tx *bolt.Tx) error {
		links := tx.Bucket(bucketLinks)
		found, err := getJSON(links, linkID, &stored)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("sandbox: no such payment link %s", linkID)
		}
		stored.Paid = true
		return putJSON(links, linkID, stored)
	})
	if err != nil {
		return nil, "", err
	}

	return s.SignedEvent(&Event{
		ID:       "evt_" + compactUUID(),
		Type:     EventCheckoutCompleted,
		Created:  s.now().UTC(),
		ObjectID: "cs_" + compactUUID(),
		Amount:   stored.Amount,
		Metadata: stored.Metadata,
	})
}

// ChargeEvent 为已成功的扣款构造签名后的 payment_intent.succeeded 回调
func (s *Sandbox) ChargeEvent(idempotencyKey string) ([]byte, string, error) {
	var stored sandboxCharge
	err := s.view(func(tx *bolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketCharges), idempotencyKey, &stored)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("sandbox: no charge for key %s", idempotencyKey)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if stored.Charge.Status != ChargeSucceeded {
		return nil, "", fmt.Errorf("sandbox: charge %s is %s", stored.Charge.ID, stored.Charge.Status)
	}

	return s.SignedEvent(&Event{
		ID:       "evt_" + compactUUID(),
		Type:     EventPaymentSucceeded,
		Created:  s.now().UTC(),
		ObjectID: stored.Charge.ID,
		Amount:   stored.Charge.Amount,
		Metadata: stored.Metadata,
	})
}

// SignedEvent 用沙箱回调密钥签名事件
func (s *Sandbox) SignedEvent(e *Event) ([]byte, string, error) {
	payload, err := EncodeEvent(e)
	if err != nil {
		return nil, "", err
	}
	return payload, Sign(payload, s.webhookSecret, s.now()), nil
}

// requestHash 幂等比较使用的请求指纹（不含元数据）
func requestHash(req *ChargeRequest, defaultCurrency string) string {
	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s", req.CustomerID, req.PaymentMethodID, req.Amount, strings.ToLower(currency))
	return hex.EncodeToString(h.Sum(nil))
}

func compactUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func putJSON(b *bolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func getJSON(b *bolt.Bucket, key string, v interface{}) (bool, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

// Charges 按创建时间列出沙箱扣款，供命令行查看
func (s *Sandbox) Charges() ([]Charge, error) {
	var records []sandboxCharge
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCharges).ForEach(func(k, v []byte) error {
			var rec sandboxCharge
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Created.Before(records[j].Created) })
	charges := make([]Charge, 0, len(records))
	for _, rec := range records {
		charges = append(charges, rec.Charge)
	}
	return charges, nil
}

var _ Processor = (*Sandbox)(nil)
var _ Processor = (*HTTPClient)(nil)
var _ Processor = (*Unavailable)(nil)

// errNotSandbox 命令行在非沙箱模式下请求沙箱操作
var errNotSandbox = errors.New("processor is not running in sandbox mode")

// AsSandbox 返回沙箱实现
func AsSandbox(p Processor) (*Sandbox, error) {
	sb, ok := p.(*Sandbox)
	if !ok {
		return nil, errNotSandbox
	}
	return sb, nil
}
