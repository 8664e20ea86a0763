package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/leadflow-go/internal/domain"
	"github.com/boddenberg/leadflow-go/internal/port"
	"github.com/boddenberg/leadflow-go/internal/service"
)

// DemoPassword is the password given to every seeded principal.
const DemoPassword = "leadflow-demo"

var demoPrincipals = []domain.NewPrincipal{
	{Email: "admin@leadflow.local", Name: "Ada Admin", Role: domain.RoleAdmin},
	{Email: "manager@leadflow.local", Name: "Max Manager", Role: domain.RoleManager},
	{Email: "sales@leadflow.local", Name: "Sam Sales", Role: domain.RoleSales},
	{Email: "sales2@leadflow.local", Name: "Riley Sales", Role: domain.RoleSales},
	{Email: "designer@leadflow.local", Name: "Dana Designer", Role: domain.RoleDesigner},
	{Email: "staff@leadflow.local", Name: "Sky Staff", Role: domain.RoleStaff,
		CustomPermissions: []domain.Permission{domain.PermViewLeads, domain.PermLogContact}},
}

var demoLeads = []domain.NewLead{
	{Name: "Northwind Events", Company: "Northwind", Email: "events@northwind.test", Source: "website", EstimatedValue: 12500},
	{Name: "Contoso Uniforms", Company: "Contoso", Phone: "+1-555-0100", Source: "referral", EstimatedValue: 4800},
	{Name: "Fabrikam Fun Run", Company: "Fabrikam", Email: "run@fabrikam.test", Source: "trade show", EstimatedValue: 7300},
}

// SeedDemo creates demo principals and leads. Principals that already exist are skipped,
// and leads are only created into an empty store, so reruns are harmless.
func SeedDemo(ctx context.Context, leads port.LeadStore, principals port.PrincipalStore, logger *zap.Logger) error {
	hash, err := service.HashPassword(DemoPassword)
	if err != nil {
		return err
	}

	for _, p := range demoPrincipals {
		_, err := principals.GetPrincipalByEmail(ctx, p.Email)
		if err == nil {
			continue
		}
		var nf *domain.ErrNotFound
		if !errors.As(err, &nf) {
			return fmt.Errorf("lookup %s: %w", p.Email, err)
		}

		p.PasswordHash = hash
		created, err := principals.CreatePrincipal(ctx, &p)
		if err != nil {
			return fmt.Errorf("seed principal %s: %w", p.Email, err)
		}
		logger.Info("seeded principal", zap.Int64("id", created.ID), zap.String("email", created.Email), zap.String("role", string(created.Role)))
	}

	existing, err := leads.ListLeads(ctx, domain.LeadFilter{Limit: 1})
	if err != nil {
		return fmt.Errorf("list leads: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	now := time.Now().UTC()
	for i, l := range demoLeads {
		if err := l.Validate(); err != nil {
			return err
		}
		created, err := leads.CreateLead(ctx, &l, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			return fmt.Errorf("seed lead %s: %w", l.Name, err)
		}
		logger.Info("seeded lead", zap.Int64("id", created.ID), zap.String("name", created.Name))
	}
	return nil
}
