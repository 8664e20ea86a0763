package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boddenberg/leadflow-go/internal/domain"
	"github.com/boddenberg/leadflow-go/internal/infra/memory"
)

func TestPrincipalStore_CreateAndLookup(t *testing.T) {
	s := memory.NewPrincipalStore()
	ctx := context.Background()

	p, err := s.CreatePrincipal(ctx, &domain.NewPrincipal{Email: " Ana@Shop.test ", Name: "Ana", Role: domain.RoleSales})
	require.NoError(t, err)
	require.True(t, p.Active)
	require.Equal(t, "ana@shop.test", p.Email)

	byEmail, err := s.GetPrincipalByEmail(ctx, "ANA@shop.test")
	require.NoError(t, err)
	require.Equal(t, p.ID, byEmail.ID)

	_, err = s.CreatePrincipal(ctx, &domain.NewPrincipal{Email: "ana@shop.test", Role: domain.RoleSales})
	var ve *domain.ErrValidation
	require.ErrorAs(t, err, &ve)
}

func TestPrincipalStore_Deactivate(t *testing.T) {
	s := memory.NewPrincipalStore()
	p, err := s.CreatePrincipal(context.Background(), &domain.NewPrincipal{Email: "x@y.z", Role: domain.RoleStaff})
	require.NoError(t, err)

	s.Deactivate(p.ID)
	got, err := s.GetPrincipal(context.Background(), p.ID)
	require.NoError(t, err)
	require.False(t, got.Active)

	_, err = s.GetPrincipal(context.Background(), 999)
	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
}
