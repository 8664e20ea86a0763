package domain_test

import (
	"testing"

	"github.com/boddenberg/leadflow-go/internal/domain"
)

func TestResolvePermissions_AdminAlwaysFull(t *testing.T) {
	cases := map[string][]domain.Permission{
		"absent":     nil,
		"empty":      {},
		"restricted": {domain.PermViewLeads},
	}
	for name, custom := range cases {
		t.Run(name, func(t *testing.T) {
			got := domain.ResolvePermissions(domain.RoleAdmin, custom)
			if len(got) != len(domain.AllPermissions) {
				t.Fatalf("expected %d permissions, got %d", len(domain.AllPermissions), len(got))
			}
			for _, p := range domain.AllPermissions {
				if !got.Has(p) {
					t.Errorf("admin missing %s", p)
				}
			}
		})
	}
}

func TestResolvePermissions_CustomOverridesRole(t *testing.T) {
	got := domain.ResolvePermissions(domain.RoleSales, []domain.Permission{domain.PermSubmitDesign})

	if len(got) != 1 || !got.Has(domain.PermSubmitDesign) {
		t.Fatalf("expected only design.submit, got %v", got.Sorted())
	}
	if got.Has(domain.PermClaimLeads) {
		t.Error("custom permissions must replace role defaults, not merge")
	}
}

func TestResolvePermissions_EmptyCustomFallsBackToRole(t *testing.T) {
	got := domain.ResolvePermissions(domain.RoleSales, []domain.Permission{})
	if !got.Has(domain.PermClaimLeads) {
		t.Error("expected sales default to include leads.claim")
	}
}

func TestResolvePermissions_UnknownRoleIsEmpty(t *testing.T) {
	got := domain.ResolvePermissions(domain.Role("janitor"), nil)
	if len(got) != 0 {
		t.Fatalf("expected empty set, got %v", got.Sorted())
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name     string
		role     domain.Role
		custom   []domain.Permission
		required domain.Permission
		want     bool
	}{
		{"admin short-circuit", domain.RoleAdmin, nil, domain.PermManageUsers, true},
		{"admin ignores custom", domain.RoleAdmin, []domain.Permission{domain.PermViewLeads}, domain.PermManageUsers, true},
		{"sales can claim", domain.RoleSales, nil, domain.PermClaimLeads, true},
		{"designer cannot claim", domain.RoleDesigner, nil, domain.PermClaimLeads, false},
		{"designer submits", domain.RoleDesigner, nil, domain.PermSubmitDesign, true},
		{"custom grants", domain.RoleStaff, []domain.Permission{domain.PermLogContact}, domain.PermLogContact, true},
		{"unknown role", domain.Role(""), nil, domain.PermViewLeads, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := domain.HasPermission(tt.role, tt.custom, tt.required); got != tt.want {
				t.Errorf("HasPermission() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrincipal_NilIsPowerless(t *testing.T) {
	var p *domain.Principal
	if p.Can(domain.PermViewLeads) {
		t.Error("nil principal must not hold permissions")
	}
	if len(p.Permissions()) != 0 {
		t.Error("nil principal must resolve to empty set")
	}
}
