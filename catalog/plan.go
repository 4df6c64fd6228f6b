package catalog

import (
	"encoding/json"
	"io/ioutil"

	extErrors "github.com/pkg/errors"
)

// Plan describes one purchasable package tier. Plans are static
// configuration, loaded once at startup; they are never persisted per-user.
type Plan struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	QuotaTotal   int64  `json:"contactLimit"`
	ValidityDays int    `json:"validityDays"`
	Price        int64  `json:"price"`    // Base price in whole currency units, before tax
	TierRank     int    `json:"tierRank"` // Strict total order across the catalog, ascending with price/quota
}

// Relationship classifies a target plan against the caller's current plan
type Relationship string

// Defining the different Relationships between a current and a target plan
const (
	RelationshipUpgrade   Relationship = "upgrade"
	RelationshipDowngrade Relationship = "downgrade"
	RelationshipCurrent   Relationship = "current"
	RelationshipBuyAgain  Relationship = "buy-again"
)

// loadPlansFromFile reads the package catalog from a JSON file. Tier ranks
// are expected to be unique and ascending with price/quota by construction;
// this is not re-validated at runtime.
func loadPlansFromFile(filename string) ([]Plan, error) {
	jsonBytes, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot open plans JSON file")
	}
	plans := make([]Plan, 0, 3)
	if err := json.Unmarshal(jsonBytes, &plans); err != nil {
		return nil, extErrors.Wrap(err, "Invalid plans JSON file")
	}
	return plans, nil
}
