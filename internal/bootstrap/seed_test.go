package bootstrap_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/leadflow-go/internal/bootstrap"
	"github.com/boddenberg/leadflow-go/internal/config"
	"github.com/boddenberg/leadflow-go/internal/domain"
)

func TestOpenBackend_DefaultsToMemory(t *testing.T) {
	b, err := bootstrap.OpenBackend(context.Background(), &config.Config{StoreBackend: config.BackendMemory}, false, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, config.BackendMemory, b.Name)
	assert.Empty(t, b.Probes)
}

func TestSeedDemo_Idempotent(t *testing.T) {
	ctx := context.Background()
	b, err := bootstrap.OpenBackend(ctx, &config.Config{StoreBackend: config.BackendMemory}, false, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, bootstrap.SeedDemo(ctx, b.Leads, b.Principals, zap.NewNop()))
	require.NoError(t, bootstrap.SeedDemo(ctx, b.Leads, b.Principals, zap.NewNop()))

	leads, err := b.Leads.ListLeads(ctx, domain.LeadFilter{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, leads, 3)
	for _, l := range leads {
		assert.False(t, l.Claimed)
		assert.Equal(t, int64(1), l.Version)
	}

	staff, err := b.Principals.GetPrincipalByEmail(ctx, "staff@leadflow.local")
	require.NoError(t, err)
	assert.True(t, staff.Can(domain.PermLogContact))
	assert.False(t, staff.Can(domain.PermManageEvents), "custom permissions replace the role defaults")
}
