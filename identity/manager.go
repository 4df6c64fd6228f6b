package identity

import (
	"context"
	"database/sql"
	"errors"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNoSuchIdentity signals an operation against an email with no account
var ErrNoSuchIdentity = errors.New("no identity with that email")

// Manager handles the database operations relating to Identities
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for identities
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Identity{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize identity.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// New creates an account with the given (already hashed) credentials
func (m *Manager) New(ctx context.Context, email, passwordHash string) (*Identity, error) {
	ident := &Identity{
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Role:         RoleUser,
	}

	result := m.db.WithContext(ctx).Create(ident)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create a new Identity")
	}

	return ident, nil
}

// GetByEmail will try to return the identity by email address, nil if absent
func (m *Manager) GetByEmail(ctx context.Context, email string) (*Identity, error) {
	var ident Identity

	result := m.db.WithContext(ctx).First(&ident, "email = ?", NormalizeEmail(email))

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get identity by email")
	}

	return &ident, nil
}

// UsernameTaken reports whether another identity already claimed a username
func (m *Manager) UsernameTaken(ctx context.Context, username, excludeEmail string) (bool, error) {
	var count int64
	result := m.db.WithContext(ctx).Model(&Identity{}).
		Where("username = ?", username).
		Where("email <> ?", NormalizeEmail(excludeEmail)).
		Count(&count)

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return false, extErrors.Wrap(result.Error, "Cannot check username uniqueness")
	}

	return count > 0, nil
}

// ProfileUpdate carries the mandatory profile fields. Applying one marks the
// profile complete.
type ProfileUpdate struct {
	Username    string
	Country     string
	PhoneNumber string
	CompanyName string
}

// UpdateProfile applies the profile fields and flips ProfileComplete
func (m *Manager) UpdateProfile(ctx context.Context, email string, update ProfileUpdate) (*Identity, error) {
	var ident Identity
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Identity{}).
			Where("email = ?", NormalizeEmail(email)).
			Updates(map[string]interface{}{
				"username":         update.Username,
				"country":          update.Country,
				"phone_number":     update.PhoneNumber,
				"company_name":     update.CompanyName,
				"profile_complete": true,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNoSuchIdentity
		}
		return tx.First(&ident, "email = ?", NormalizeEmail(email)).Error
	})

	if err != nil {
		if errors.Is(err, ErrNoSuchIdentity) {
			return nil, err
		}
		m.logger.Error("Database returned error",
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot update profile")
	}

	return &ident, nil
}

// List returns every identity, newest first. Admin surface only.
func (m *Manager) List(ctx context.Context) ([]Identity, error) {
	results := make([]Identity, 0, 16)
	result := m.db.WithContext(ctx).Order("created_at desc").Find(&results)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list identities")
	}
	return results, nil
}

// Delete removes an identity and runs the supplied cascade steps in the same
// transaction, so a half-deleted account can never be observed
func (m *Manager) Delete(ctx context.Context, email string, cascade ...func(tx *gorm.DB) error) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&Identity{}, "email = ?", NormalizeEmail(email))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNoSuchIdentity
		}
		for _, step := range cascade {
			if err := step(tx); err != nil {
				return err
			}
		}
		return nil
	}, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})

	if err != nil {
		if errors.Is(err, ErrNoSuchIdentity) {
			return err
		}
		m.logger.Error("Unable to delete identity",
			zap.String("IdentityEmail", email),
			zap.Error(err),
		)
		return extErrors.Wrap(err, "Cannot delete identity")
	}
	return nil
}
