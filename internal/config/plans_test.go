package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlanCatalogIsValid(t *testing.T) {
	catalog := DefaultPlanCatalog()
	require.NoError(t, validatePlanCatalog(catalog))

	start, ok := catalog.Find("START")
	require.True(t, ok)
	assert.Equal(t, 2, start.MaxUsers)
	assert.Equal(t, 50, start.MaxDeals)
	assert.Equal(t, 1, start.MaxPipelines)
	assert.Equal(t, 500, start.MaxContacts)
	assert.Equal(t, 5, start.MaxAutomations)
	assert.Equal(t, []string{"basic_crm"}, start.Features)
}

func TestValidatePlanCatalog(t *testing.T) {
	cases := []struct {
		name    string
		catalog PlanCatalog
	}{
		{"empty", PlanCatalog{DefaultPlan: "start"}},
		{"unknown default", PlanCatalog{DefaultPlan: "gold", Plans: []PlanSpec{{Name: "start"}}}},
		{"duplicate", PlanCatalog{DefaultPlan: "start", Plans: []PlanSpec{{Name: "start"}, {Name: "Start"}}}},
		{"negative quota", PlanCatalog{DefaultPlan: "start", Plans: []PlanSpec{{Name: "start", MaxDeals: -2}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, validatePlanCatalog(tc.catalog))
		})
	}

	unlimited := PlanCatalog{DefaultPlan: "free", Plans: []PlanSpec{{Name: "free", MaxDeals: -1}}}
	assert.NoError(t, validatePlanCatalog(unlimited))
}
