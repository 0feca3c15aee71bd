package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"job-market-etl/config"
	"job-market-etl/utils"
)

func newTestLogger() *utils.Logger { return utils.NewNopLogger() }

func str(s string) *string { return &s }

func defaultTaxonomy(t *testing.T) *config.Taxonomy {
	t.Helper()
	tax, err := config.LoadTaxonomy("")
	require.NoError(t, err)
	return tax
}
