package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"gorm.io/gorm"

	"github.com/qs3c/installment_billing/config"
	"github.com/qs3c/installment_billing/internal/model"
	"github.com/qs3c/installment_billing/internal/model/dto"
	"github.com/qs3c/installment_billing/internal/processor"
	"github.com/qs3c/installment_billing/internal/repository"
)

var (
	ErrNothingOutstanding = errors.New("没有待支付的分期")
	ErrLinkUnavailable    = errors.New("付款链接生成失败")
)

// PaymentLinkService 为一组未支付分期生成合并托管付款链接
type PaymentLinkService struct {
	store *repository.Store
	proc  processor.Processor
	cfg   *config.ProcessorConfig
}

func NewPaymentLinkService(store *repository.Store, proc processor.Processor, cfg *config.ProcessorConfig) *PaymentLinkService {
	return &PaymentLinkService{
		store: store,
		proc:  proc,
		cfg:   cfg,
	}
}

// CreateLink 校验家长后为其未支付分期生成链接
func (s *PaymentLinkService) CreateLink(ctx context.Context, req *dto.CreatePaymentLinkRequest) (*dto.PaymentLinkResponse, error) {
	if _, err := s.store.Parents.GetByID(ctx, req.ParentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParentNotFound
		}
		return nil, err
	}
	return s.Build(ctx, req.ParentID, req.InstallmentIDs, SourceInstallmentLink, nil)
}

// Build 生成链接。不存在、属于其他家长或已支付的分期被跳过并在 Skipped 中返回。
func (s *PaymentLinkService) Build(ctx context.Context, parentID int64, installmentIDs []int64, source string, extra map[string]string) (*dto.PaymentLinkResponse, error) {
	installments, err := s.store.Installments.GetByIDs(ctx, installmentIDs)
	if err != nil {
		return nil, err
	}

	found := make(map[int64]*model.Installment, len(installments))
	for _, inst := range installments {
		found[inst.ID] = inst
	}

	resp := &dto.PaymentLinkResponse{}
	var items []processor.LineItem
	for _, id := range installmentIDs {
		inst, ok := found[id]
		if !ok || inst.ParentID != parentID || inst.IsPaid() {
			resp.Skipped = append(resp.Skipped, id)
			continue
		}
		items = append(items, processor.LineItem{
			Description: fmt.Sprintf("Installment %d of %d (due %s)",
				inst.InstallmentNumber, inst.TotalInstallments, inst.DueDate.Format(dateLayout)),
			Amount: inst.Amount,
		})
		resp.InstallmentIDs = append(resp.InstallmentIDs, id)
		resp.Total += inst.Amount
	}
	if len(items) == 0 {
		return nil, ErrNothingOutstanding
	}

	metadata := map[string]string{
		MetaSource:         source,
		MetaParentID:       strconv.FormatInt(parentID, 10),
		MetaInstallmentIDs: joinIDs(resp.InstallmentIDs),
	}
	for k, v := range extra {
		metadata[k] = v
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout())
	defer cancel()

	link, err := s.proc.CreatePaymentLink(callCtx, &processor.LinkRequest{
		Items:       items,
		Currency:    s.cfg.Currency,
		Metadata:    metadata,
		RedirectURL: s.cfg.SuccessURL,
	})
	if err != nil {
		log.Printf("Failed to create payment link for parent %d: %v", parentID, err)
		return nil, fmt.Errorf("%w: %v", ErrLinkUnavailable, err)
	}

	resp.URL = link.URL
	resp.LinkID = link.ID
	return resp, nil
}
