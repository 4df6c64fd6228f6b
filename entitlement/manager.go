package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ManagerOptions contains the configuration for the entitlement Manager
type ManagerOptions struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Manager handles granting, reading, and debiting Entitlements
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for entitlements
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Entitlement{}, &Grant{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize entitlement.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// Get returns the current entitlement of an identity, or nil if it has none
func (m *Manager) Get(ctx context.Context, email string) (*Entitlement, error) {
	var ent Entitlement

	result := m.DB.WithContext(ctx).First(&ent, "identity_email = ?", email)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get entitlement by identity")
	}

	return &ent, nil
}

// ListAll returns every identity's current entitlement, for the admin
// dashboard aggregation
func (m *Manager) ListAll(ctx context.Context) ([]Entitlement, error) {
	results := make([]Entitlement, 0, 16)
	result := m.DB.WithContext(ctx).Find(&results)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list entitlements")
	}
	return results, nil
}

// History returns the append-only grant history for an identity, oldest first
func (m *Manager) History(ctx context.Context, email string) ([]Grant, error) {
	grants := make([]Grant, 0, 2)

	result := m.DB.WithContext(ctx).
		Order("created_at asc").
		Find(&grants, "identity_email = ?", email)

	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get grant history by identity")
	}

	return grants, nil
}

// PurgeIdentity returns a cascade step that removes the identity's
// entitlement and grant history, for admin account removal
func (m *Manager) PurgeIdentity(email string) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		if err := tx.Delete(&Entitlement{}, "identity_email = ?", email).Error; err != nil {
			return err
		}
		return tx.Delete(&Grant{}, "identity_email = ?", email).Error
	}
}

// GrantOption describes a grant event. ExpiresAt is computed from Now and
// ValidityDays.
type GrantOption struct {
	IdentityEmail string
	PlanName      string
	QuotaTotal    int64
	ValidityDays  int
	PriceCharged  int64
	OrderID       string
	PaymentID     string
	Now           time.Time
}

// replaceAndAppend replaces the current entitlement and appends the history
// entry within the given transaction. Quota consumption always resets to zero
// on a new grant.
func (m *Manager) replaceAndAppend(tx *gorm.DB, opt GrantOption) (*Entitlement, error) {
	expiresAt := opt.Now.AddDate(0, 0, opt.ValidityDays)

	ent := Entitlement{
		IdentityEmail: opt.IdentityEmail,
		PlanName:      opt.PlanName,
		QuotaTotal:    opt.QuotaTotal,
		QuotaConsumed: 0,
		GrantedAt:     opt.Now,
		ExpiresAt:     expiresAt,
		OrderID:       opt.OrderID,
		PaymentID:     opt.PaymentID,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity_email"}},
		UpdateAll: true,
	}).Create(&ent).Error; err != nil {
		return nil, err
	}

	grant := Grant{
		ID:            uuid.New().String(),
		IdentityEmail: opt.IdentityEmail,
		PlanName:      opt.PlanName,
		QuotaTotal:    opt.QuotaTotal,
		ValidityDays:  opt.ValidityDays,
		PriceCharged:  opt.PriceCharged,
		GrantedAt:     opt.Now,
		ExpiresAt:     expiresAt,
		OrderID:       opt.OrderID,
		PaymentID:     opt.PaymentID,
	}
	if err := tx.Create(&grant).Error; err != nil {
		return nil, err
	}

	return &ent, nil
}

// GrantTrial attaches the fixed free trial to an identity, replacing whatever
// entitlement it had. Returns ErrPaidPlanActive if a paid plan is still
// active; re-granting over an expired/exhausted plan (or a prior trial) is
// allowed.
func (m *Manager) GrantTrial(ctx context.Context, email string, now time.Time) (*Entitlement, error) {
	var granted *Entitlement
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Entitlement
		lookup := tx.First(&current, "identity_email = ?", email)
		if lookup.Error == nil {
			if current.PlanName != TrialPlanName && ComputeStatus(&current, now) == StatusActive {
				return ErrPaidPlanActive
			}
		} else if !errors.Is(lookup.Error, gorm.ErrRecordNotFound) {
			return lookup.Error
		}

		var err error
		granted, err = m.replaceAndAppend(tx, GrantOption{
			IdentityEmail: email,
			PlanName:      TrialPlanName,
			QuotaTotal:    TrialQuota,
			ValidityDays:  TrialValidityDays,
			PriceCharged:  0,
			Now:           now,
		})
		return err
	}, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})

	if err != nil {
		if errors.Is(err, ErrPaidPlanActive) {
			return nil, err
		}
		m.Logger.Error("Unable to grant trial",
			zap.String("IdentityEmail", email),
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot grant trial")
	}
	return granted, nil
}

// ApplyGrant records a paid grant within the caller's transaction, so that
// payment state changes and the entitlement replacement commit together.
// This is the only path that records a non-zero price, and it requires a
// payment reference.
func (m *Manager) ApplyGrant(tx *gorm.DB, opt GrantOption) (*Entitlement, error) {
	if len(opt.OrderID) == 0 || len(opt.PaymentID) == 0 {
		return nil, fmt.Errorf("paid grants require a payment reference")
	}
	return m.replaceAndAppend(tx, opt)
}

// GrantPaidPlan attaches a purchased plan to an identity in its own
// transaction
func (m *Manager) GrantPaidPlan(ctx context.Context, opt GrantOption) (*Entitlement, error) {
	var granted *Entitlement
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		granted, err = m.ApplyGrant(tx, opt)
		return err
	}, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})

	if err != nil {
		m.Logger.Error("Unable to grant paid plan",
			zap.String("IdentityEmail", opt.IdentityEmail),
			zap.String("PlanName", opt.PlanName),
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot grant paid plan")
	}
	return granted, nil
}

// DebitUsage debits cost from the identity's entitlement. The debit is a
// single conditional update so two concurrent requests can never jointly
// overrun the quota. Returns the entitlement after the debit.
func (m *Manager) DebitUsage(ctx context.Context, email string, cost int64, now time.Time) (*Entitlement, error) {
	if cost <= 0 {
		return nil, ErrNonPositiveCost
	}

	var after Entitlement
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Entitlement{}).
			Where("identity_email = ?", email).
			Where("expires_at >= ?", now).
			Where("quota_consumed + ? <= quota_total", cost).
			UpdateColumn("quota_consumed", gorm.Expr("quota_consumed + ?", cost))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// guarded update did not apply, figure out why
			var current Entitlement
			lookup := tx.First(&current, "identity_email = ?", email)
			if errors.Is(lookup.Error, gorm.ErrRecordNotFound) {
				return &InactiveError{Reason: StatusNoPackage}
			}
			if lookup.Error != nil {
				return lookup.Error
			}
			if status := ComputeStatus(&current, now); status != StatusActive {
				return &InactiveError{Reason: status}
			}
			return &InsufficientQuotaError{
				Needed:    cost,
				Remaining: current.Remaining(),
			}
		}
		return tx.First(&after, "identity_email = ?", email).Error
	}, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})

	if err != nil {
		var inactive *InactiveError
		var insufficient *InsufficientQuotaError
		if errors.As(err, &inactive) || errors.As(err, &insufficient) {
			return nil, err
		}
		m.Logger.Error("Unable to debit usage",
			zap.String("IdentityEmail", email),
			zap.Int64("Cost", cost),
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot debit usage")
	}

	return &after, nil
}
