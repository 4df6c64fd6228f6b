package catalog

import (
	"fmt"
	"sort"

	"github.com/thekamyabsagar/kamyabvcffile/entitlement"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// ManagerOptions contains the configuration for the catalog Manager
type ManagerOptions struct {
	Logger         *zap.Logger
	PathToPlanJSON string
}

// Manager holds the loaded package catalog and answers lookup and
// relationship queries. It is read-only after construction.
type Manager struct {
	ManagerOptions
	planArray    []Plan
	nameIndexMap map[string]int
}

// NewManager loads the plan catalog from the configured JSON file
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if len(option.PathToPlanJSON) == 0 {
		return nil, fmt.Errorf("empty PathToPlanJSON is invalid")
	}

	plans, err := loadPlansFromFile(option.PathToPlanJSON)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot populate defined Plans")
	}

	return newManager(option, plans)
}

func newManager(option ManagerOptions, plans []Plan) (*Manager, error) {
	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].TierRank < plans[j].TierRank
	})

	nameMap := make(map[string]int)
	for index, p := range plans {
		if _, ok := nameMap[p.Name]; ok {
			return nil, fmt.Errorf("duplicate plan name %q in catalog", p.Name)
		}
		nameMap[p.Name] = index + 1
	}

	return &Manager{
		ManagerOptions: option,
		planArray:      plans,
		nameIndexMap:   nameMap,
	}, nil
}

// ListPlans returns the catalog in ascending tier rank order
func (m *Manager) ListPlans() []Plan {
	return m.planArray
}

// FindByName returns the catalog entry with the given name
func (m *Manager) FindByName(name string) (Plan, bool) {
	index := m.nameIndexMap[name]
	if index == 0 {
		return Plan{}, false
	}
	return m.planArray[index-1], true
}

// RelationshipOf classifies the target plan relative to the caller's current
// plan and its derived status. A caller without a catalog plan (no package,
// or the trial) sees every tier as an upgrade. The same tier reads as
// buy-again once the current plan is exhausted.
func (m *Manager) RelationshipOf(currentPlanName string, currentStatus entitlement.Status, targetName string) (Relationship, error) {
	target, ok := m.FindByName(targetName)
	if !ok {
		return "", fmt.Errorf("plan %q is not in the catalog", targetName)
	}

	current, ok := m.FindByName(currentPlanName)
	if !ok {
		return RelationshipUpgrade, nil
	}

	switch {
	case target.TierRank == current.TierRank:
		if currentStatus == entitlement.StatusExhausted {
			return RelationshipBuyAgain, nil
		}
		return RelationshipCurrent, nil
	case target.TierRank > current.TierRank:
		return RelationshipUpgrade, nil
	default:
		return RelationshipDowngrade, nil
	}
}
