// Package audit persists payment method change attempts. Every gateway
// side effect leaves a row, successful or not, so support can reconstruct
// what happened to a customer's billing.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/suscribo/paygate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outcomes of a change attempt.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// ChangeAttempt is one recorded gateway action.
type ChangeAttempt struct {
	ID        int64          `gorm:"column:id;primaryKey" json:"id"`
	Email     string         `gorm:"column:email;type:text;index" json:"email"`
	Gateway   string         `gorm:"column:gateway;type:text" json:"gateway"`
	Action    string         `gorm:"column:action;type:text" json:"action"`
	Outcome   string         `gorm:"column:outcome;type:text" json:"outcome"`
	Detail    datatypes.JSON `gorm:"column:detail" json:"detail,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (ChangeAttempt) TableName() string { return "paygate_change_attempts" }

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	node *snowflake.Node
}

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

func NewService(p ServiceParam) (*Service, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("audit"),
		node: node,
	}, nil
}

// Record writes one change attempt. Failures are logged and swallowed;
// auditing never blocks the flow it observes.
func (s *Service) Record(ctx context.Context, email, gateway, action, outcome string, detail map[string]any) {
	var payload datatypes.JSON
	if len(detail) > 0 {
		raw, err := json.Marshal(detail)
		if err != nil {
			s.log.Warn("audit detail not serializable", zap.Error(err))
		} else {
			payload = datatypes.JSON(raw)
		}
	}

	attempt := ChangeAttempt{
		ID:        s.node.Generate().Int64(),
		Email:     email,
		Gateway:   gateway,
		Action:    action,
		Outcome:   outcome,
		Detail:    payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&attempt).Error; err != nil {
		s.log.Error("recording change attempt failed",
			zap.String("email", email),
			zap.String("gateway", gateway),
			zap.String("action", action),
			zap.Error(err))
	}
}

// HistoryByEmail returns one page of a customer's change attempts, newest
// first. Identifiers are snowflakes, so id order is creation order.
func (s *Service) HistoryByEmail(ctx context.Context, email string, page pagination.Params) ([]ChangeAttempt, pagination.PageInfo, error) {
	limit := pagination.ClampSize(page.PageSize, 20, 100)

	q := s.db.WithContext(ctx).Where("email = ?", email)
	if page.PageToken != "" {
		cursor, err := pagination.Decode(page.PageToken)
		if err != nil {
			return nil, pagination.PageInfo{}, err
		}
		q = q.Where("id < ?", cursor.ID)
	}

	var attempts []ChangeAttempt
	if err := q.Order("id DESC").Limit(limit + 1).Find(&attempts).Error; err != nil {
		return nil, pagination.PageInfo{}, err
	}

	attempts, info := pagination.Trim(attempts, limit, func(a ChangeAttempt) pagination.Cursor {
		return pagination.Cursor{ID: a.ID}
	})
	return attempts, info, nil
}

// Migrate creates the audit table. The storefront schema is owned by the
// store; this table is the only one the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&ChangeAttempt{})
}
