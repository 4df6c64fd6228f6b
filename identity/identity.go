package identity

import (
	"strings"
	"time"
)

// Role of an identity within the application
const (
	RoleUser  string = "user"
	RoleAdmin string = "admin"
)

// Identity describes a user account, keyed by its normalized email address.
// The current entitlement and the grant history hang off this key in the
// entitlement package.
type Identity struct {
	Email           string    `json:"email" gorm:"primaryKey"`
	PasswordHash    string    `json:"-"`
	Username        string    `json:"username,omitempty"`
	Country         string    `json:"country,omitempty"`
	PhoneNumber     string    `json:"phoneNumber,omitempty"`
	CompanyName     string    `json:"companyName,omitempty"`
	ProfileComplete bool      `json:"isProfileComplete"`
	Role            string    `json:"role"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"-"`
}

// NormalizeEmail folds an email address into its canonical stored form
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
