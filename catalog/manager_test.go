package catalog

import (
	"testing"

	"github.com/thekamyabsagar/kamyabvcffile/entitlement"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testPlans() []Plan {
	return []Plan{
		{Name: "Premium", QuotaTotal: 300, ValidityDays: 360, Price: 3, TierRank: 3},
		{Name: "Basic", QuotaTotal: 100, ValidityDays: 30, Price: 1, TierRank: 1},
		{Name: "Standard", QuotaTotal: 200, ValidityDays: 180, Price: 2, TierRank: 2},
	}
}

func testCatalogManager(t *testing.T) *Manager {
	t.Helper()

	manager, err := newManager(ManagerOptions{
		Logger:         zaptest.NewLogger(t),
		PathToPlanJSON: "unused",
	}, testPlans())
	require.NoError(t, err)

	return manager
}

func TestListPlansOrderedByTier(t *testing.T) {
	manager := testCatalogManager(t)

	plans := manager.ListPlans()
	require.Len(t, plans, 3)
	assert.Equal(t, "Basic", plans[0].Name)
	assert.Equal(t, "Standard", plans[1].Name)
	assert.Equal(t, "Premium", plans[2].Name)
}

func TestFindByName(t *testing.T) {
	manager := testCatalogManager(t)

	plan, ok := manager.FindByName("Standard")
	require.True(t, ok)
	assert.Equal(t, int64(200), plan.QuotaTotal)

	_, ok = manager.FindByName("Platinum")
	assert.False(t, ok)
}

func TestDuplicatePlanNameRejected(t *testing.T) {
	plans := testPlans()
	plans = append(plans, Plan{Name: "Basic", TierRank: 4})

	_, err := newManager(ManagerOptions{
		Logger:         zaptest.NewLogger(t),
		PathToPlanJSON: "unused",
	}, plans)
	assert.Error(t, err)
}

func TestRelationshipOf(t *testing.T) {
	manager := testCatalogManager(t)

	tests := []struct {
		name          string
		currentPlan   string
		currentStatus entitlement.Status
		target        string
		expected      Relationship
	}{
		{"no plan sees upgrade", "", entitlement.StatusNoPackage, "Basic", RelationshipUpgrade},
		{"trial sees upgrade", entitlement.TrialPlanName, entitlement.StatusActive, "Basic", RelationshipUpgrade},
		{"same tier while active", "Standard", entitlement.StatusActive, "Standard", RelationshipCurrent},
		{"same tier after exhaustion", "Standard", entitlement.StatusExhausted, "Standard", RelationshipBuyAgain},
		{"higher tier", "Basic", entitlement.StatusActive, "Premium", RelationshipUpgrade},
		{"lower tier", "Premium", entitlement.StatusActive, "Basic", RelationshipDowngrade},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rel, err := manager.RelationshipOf(tc.currentPlan, tc.currentStatus, tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, rel)
		})
	}
}

func TestRelationshipOfUnknownTarget(t *testing.T) {
	manager := testCatalogManager(t)

	_, err := manager.RelationshipOf("Basic", entitlement.StatusActive, "Platinum")
	assert.Error(t, err)
}
