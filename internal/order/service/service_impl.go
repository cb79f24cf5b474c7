package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/suscribo/paygate/internal/observability/metrics"
	orderdomain "github.com/suscribo/paygate/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo orderdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo orderdomain.Repository
}

func NewService(p ServiceParam) orderdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("order.service"),
		repo: p.Repo,
	}
}

// Load implements domain.Service.
func (s *Service) Load(ctx context.Context, email string) (orderdomain.CustomerView, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return orderdomain.CustomerView{}, orderdomain.ErrInvalidEmail
	}

	candidates, err := s.repo.FindParentCandidates(ctx, s.db, email)
	if err != nil {
		metrics.Default().IncStoreError("find_parents")
		s.log.Error("loading parent orders failed", zap.String("email", email), zap.Error(err))
		return orderdomain.CustomerView{}, orderdomain.ErrStoreUnavailable
	}

	// First installments are linked by convention (id = parent id - 1) and
	// carry no pointer meta, so they show up as parent candidates. Walking
	// newest-identifier-first visits each plan order before the order it
	// claims, so claimed ids can be dropped from the parent set in one pass.
	candidateByID := make(map[int64]orderdomain.Order, len(candidates))
	for _, c := range candidates {
		candidateByID[c.ID] = c
	}
	claimed := make(map[int64]bool)

	view := orderdomain.CustomerView{Email: email}
	for _, parent := range candidates {
		if claimed[parent.ID] {
			continue
		}

		group := s.loadGroup(ctx, parent, candidateByID, claimed)
		view.Groups = append(view.Groups, group)
	}

	view.Summary = summarize(view.Groups)
	return view, nil
}

func (s *Service) loadGroup(ctx context.Context, parent orderdomain.Order, candidateByID map[int64]orderdomain.Order, claimed map[int64]bool) orderdomain.OrderGroup {
	installments, err := s.repo.FindInstallmentsByPointer(ctx, s.db, parent.ID)
	if err != nil {
		// Absence of installments is meaningful business information; a
		// failed read degrades to an empty group instead of propagating.
		metrics.Default().IncStoreError("find_installments")
		s.log.Warn("loading installments failed, group degraded",
			zap.Int64("parent_id", parent.ID), zap.Error(err))
		installments = nil
	}

	if first := s.findFirstInstallment(ctx, parent, candidateByID); first != nil {
		claimed[first.ID] = true
		installments = append(installments, *first)
	}

	installments = dedupeByID(installments)

	parent.Meta = s.loadMeta(ctx, parent.ID)
	for i := range installments {
		installments[i].Meta = s.loadMeta(ctx, installments[i].ID)
		installments[i].PaymentNumber = installments[i].Meta.PaymentNumber()
	}

	sort.SliceStable(installments, func(i, j int) bool {
		if installments[i].PaymentNumber != installments[j].PaymentNumber {
			return installments[i].PaymentNumber < installments[j].PaymentNumber
		}
		return installments[i].ID < installments[j].ID
	})

	return orderdomain.OrderGroup{Parent: parent, Installments: installments}
}

// findFirstInstallment resolves the by-convention linkage: the first
// installment's identifier equals the plan order's identifier minus one.
func (s *Service) findFirstInstallment(ctx context.Context, parent orderdomain.Order, candidateByID map[int64]orderdomain.Order) *orderdomain.Order {
	firstID := parent.ID - 1
	if firstID <= 0 {
		return nil
	}

	// Parent candidates carry no schedule-payment pointer, so a candidate
	// at the adjacent id is safe to claim outright.
	if first, ok := candidateByID[firstID]; ok {
		return &first
	}

	first, err := s.repo.FindOrderByID(ctx, s.db, firstID)
	if err != nil {
		metrics.Default().IncStoreError("find_order")
		s.log.Warn("loading first installment failed",
			zap.Int64("order_id", firstID), zap.Error(err))
		return nil
	}
	if first == nil || first.BillingEmail != parent.BillingEmail {
		return nil
	}

	// An order at the adjacent id that is pointer-linked to another plan
	// belongs to that plan; claiming it here would put one installment in
	// two groups.
	meta := s.loadMeta(ctx, first.ID)
	if ptr := meta.Get(orderdomain.MetaKeySchedulePayment); ptr != "" && ptr != strconv.FormatInt(parent.ID, 10) {
		return nil
	}
	return first
}

// loadMeta materializes an order's full metadata map with one dedicated
// query per order. Aggregating through the store's concatenation truncates
// beyond a size limit and silently drops keys, so this stays per-order.
func (s *Service) loadMeta(ctx context.Context, orderID int64) orderdomain.MetaMap {
	rows, err := s.repo.FindOrderMeta(ctx, s.db, orderID)
	if err != nil {
		metrics.Default().IncStoreError("find_meta")
		s.log.Warn("loading order meta failed, map degraded",
			zap.Int64("order_id", orderID), zap.Error(err))
		return orderdomain.MetaMap{}
	}
	return orderdomain.NewMetaMap(rows)
}

// WriteOrderMeta implements domain.Service.
func (s *Service) WriteOrderMeta(ctx context.Context, orderID int64, key, value string) (string, error) {
	if orderID <= 0 {
		return "", orderdomain.ErrOrderNotFound
	}
	if strings.TrimSpace(key) == "" {
		return "", orderdomain.ErrInvalidMetaKey
	}

	operation, err := s.repo.UpsertOrderMeta(ctx, s.db, orderID, key, value)
	if err != nil {
		metrics.Default().IncStoreError("write_meta")
		s.log.Error("writing order meta failed",
			zap.Int64("order_id", orderID), zap.String("meta_key", key), zap.Error(err))
		return "", orderdomain.ErrStoreUnavailable
	}

	s.log.Info("order meta written",
		zap.Int64("order_id", orderID),
		zap.String("meta_key", key),
		zap.String("operation", operation))
	return operation, nil
}

// RotateStripeSource implements domain.Service.
func (s *Service) RotateStripeSource(ctx context.Context, email, newSourceID string) (orderdomain.RotateResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return orderdomain.RotateResult{}, orderdomain.ErrInvalidEmail
	}

	var result orderdomain.RotateResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.FindMetaByEmail(ctx, tx, email, orderdomain.MetaKeyStripeSourceID)
		if err != nil {
			return err
		}
		result.OrdersFound = len(rows)
		if len(rows) == 0 {
			return nil
		}

		// Preserve the superseded values before rewriting. The legacy
		// store is append-only in spirit; nothing current is overwritten
		// without keeping its predecessor.
		for _, row := range rows {
			if _, err := s.repo.UpsertOrderMeta(ctx, tx, row.OrderID, orderdomain.MetaKeyOldStripeSourceID, row.MetaValue); err != nil {
				return err
			}
		}

		updated, err := s.repo.UpdateMetaByEmail(ctx, tx, email, orderdomain.MetaKeyStripeSourceID, newSourceID)
		if err != nil {
			return err
		}
		result.UpdatedCount = updated
		return nil
	})
	if err != nil {
		metrics.Default().IncStoreError("rotate_stripe_source")
		s.log.Error("rotating stripe source failed", zap.String("email", email), zap.Error(err))
		return orderdomain.RotateResult{}, orderdomain.ErrStoreUnavailable
	}

	s.log.Info("stripe source rotated",
		zap.String("email", email),
		zap.Int("orders_found", result.OrdersFound),
		zap.Int64("updated_count", result.UpdatedCount))
	return result, nil
}

func dedupeByID(orders []orderdomain.Order) []orderdomain.Order {
	if len(orders) < 2 {
		return orders
	}
	seen := make(map[int64]bool, len(orders))
	out := orders[:0]
	for _, o := range orders {
		if seen[o.ID] {
			continue
		}
		seen[o.ID] = true
		out = append(out, o)
	}
	return out
}

func summarize(groups []orderdomain.OrderGroup) orderdomain.ViewSummary {
	summary := orderdomain.ViewSummary{ParentCount: len(groups)}
	for _, group := range groups {
		summary.InstallmentCount += len(group.Installments)
		scanFlags(&summary, group.Parent.Meta)
		for _, inst := range group.Installments {
			scanFlags(&summary, inst.Meta)
		}
	}
	return summary
}

func scanFlags(summary *orderdomain.ViewSummary, meta orderdomain.MetaMap) {
	for key, value := range meta {
		if strings.TrimSpace(value) == "" {
			continue
		}
		switch {
		case strings.HasPrefix(key, "_stripe_"):
			summary.HasStripeMeta = true
		case strings.HasPrefix(key, "_dlocal_"):
			summary.HasDLocalMeta = true
		}
	}
}
