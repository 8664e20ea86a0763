package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/leadflow-go/internal/domain"
	"github.com/boddenberg/leadflow-go/internal/infra/cache"
	"github.com/boddenberg/leadflow-go/internal/infra/memory"
	"github.com/boddenberg/leadflow-go/internal/infra/observability"
	"github.com/boddenberg/leadflow-go/internal/infra/resilience"
	"github.com/boddenberg/leadflow-go/internal/service"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc        *service.LeadService
	leads      *memory.LeadStore
	principals *memory.PrincipalStore
	metrics    *observability.Metrics
	sales      int64
	rival      int64
	designer   int64
	staff      int64
}

func newFixture(t *testing.T, opts ...service.Option) *fixture {
	t.Helper()
	f := &fixture{
		leads:      memory.NewLeadStore(),
		principals: memory.NewPrincipalStore(),
		metrics:    observability.NewMetrics(),
	}
	f.sales = f.principal(t, "sales@example.com", domain.RoleSales, nil)
	f.rival = f.principal(t, "rival@example.com", domain.RoleSales, nil)
	f.designer = f.principal(t, "design@example.com", domain.RoleDesigner, nil)
	f.staff = f.principal(t, "staff@example.com", domain.RoleStaff, nil)

	opts = append([]service.Option{
		service.WithClock(func() time.Time { return fixedNow }),
		service.WithConflictRetry(resilience.Config{MaxRetries: 3, InitialBackoff: time.Millisecond}),
	}, opts...)
	f.svc = service.NewLeadService(f.leads, f.principals, f.metrics, zap.NewNop(), opts...)
	return f
}

func (f *fixture) principal(t *testing.T, email string, role domain.Role, custom []domain.Permission) int64 {
	t.Helper()
	p, err := f.principals.CreatePrincipal(context.Background(), &domain.NewPrincipal{
		Email: email, Name: email, Role: role, CustomPermissions: custom,
	})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) lead(t *testing.T) *domain.Lead {
	t.Helper()
	l, err := f.svc.CreateLead(context.Background(), f.sales, domain.NewLead{Name: "Acme", Email: "buyer@acme.test"})
	require.NoError(t, err)
	return l
}

func (f *fixture) claimed(t *testing.T) *domain.Lead {
	t.Helper()
	l := f.lead(t)
	res, err := f.svc.ClaimLead(context.Background(), l.ID, f.sales)
	require.NoError(t, err)
	return res.Lead
}

func (f *fixture) stored(t *testing.T, id int64) *domain.Lead {
	t.Helper()
	l, err := f.leads.GetLead(context.Background(), id)
	require.NoError(t, err)
	return l
}

func TestClaimLead_SecondClaimerRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.lead(t)

	res, err := f.svc.ClaimLead(ctx, l.ID, f.sales)
	require.NoError(t, err)
	assert.Equal(t, domain.NextStepCreateOrder, res.Next)
	assert.True(t, res.Lead.Claimed)
	require.NotNil(t, res.Lead.ClaimedByID)
	assert.Equal(t, f.sales, *res.Lead.ClaimedByID)
	require.NotNil(t, res.Lead.ClaimedAt)
	assert.True(t, res.Lead.ClaimedAt.Equal(fixedNow))

	_, err = f.svc.ClaimLead(ctx, l.ID, f.rival)
	var already *domain.ErrAlreadyClaimed
	require.ErrorAs(t, err, &already)
	assert.Equal(t, f.sales, already.ClaimedByID)

	assert.Equal(t, f.sales, *f.stored(t, l.ID).ClaimedByID)
}

func TestClaimLead_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	l := f.lead(t)

	actors := []int64{f.sales, f.rival}
	for i := 0; i < 8; i++ {
		actors = append(actors, f.principal(t, "extra"+string(rune('a'+i))+"@example.com", domain.RoleSales, nil))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []int64
		losers  int
	)
	for _, actor := range actors {
		wg.Add(1)
		go func(actor int64) {
			defer wg.Done()
			_, err := f.svc.ClaimLead(context.Background(), l.ID, actor)
			mu.Lock()
			defer mu.Unlock()
			var already *domain.ErrAlreadyClaimed
			switch {
			case err == nil:
				winners = append(winners, actor)
			case errors.As(err, &already):
				losers++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(actor)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, len(actors)-1, losers)
	assert.Equal(t, winners[0], *f.stored(t, l.ID).ClaimedByID)
}

func TestClaimLead_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ClaimLead(ctx, 999, f.sales)
	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)

	l := f.lead(t)
	_, err = f.svc.ClaimLead(ctx, l.ID, f.designer)
	var forbidden *domain.ErrForbidden
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, domain.PermClaimLeads, forbidden.Required)
	assert.False(t, f.stored(t, l.ID).Claimed)
}

func TestPermissionCheckedBeforeLookup(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ClaimLead(context.Background(), 999, f.staff)
	var forbidden *domain.ErrForbidden
	require.ErrorAs(t, err, &forbidden)

	_, err = f.svc.SetLeadProgress(context.Background(), 999, f.staff, domain.ProgressUpdate{ContactComplete: domain.Bool(true)})
	require.ErrorAs(t, err, &forbidden)
}

func TestUnknownOrInactiveActorIsForbidden(t *testing.T) {
	f := newFixture(t)
	l := f.lead(t)

	_, err := f.svc.ClaimLead(context.Background(), 4242, 4242)
	var forbidden *domain.ErrForbidden
	require.ErrorAs(t, err, &forbidden)

	f.principals.Deactivate(f.rival)
	_, err = f.svc.ClaimLead(context.Background(), l.ID, f.rival)
	require.ErrorAs(t, err, &forbidden)
}

func TestCustomPermissionsOverrideRole(t *testing.T) {
	f := newFixture(t)
	l := f.lead(t)

	// A designer granted only leads.claim loses the designer defaults.
	claimer := f.principal(t, "custom@example.com", domain.RoleDesigner, []domain.Permission{domain.PermClaimLeads})
	_, err := f.svc.ClaimLead(context.Background(), l.ID, claimer)
	require.NoError(t, err)

	_, err = f.svc.GetLeadDetail(context.Background(), l.ID, claimer)
	var forbidden *domain.ErrForbidden
	require.ErrorAs(t, err, &forbidden)
}

func TestSetLeadProgress_PrecedingStepIncomplete(t *testing.T) {
	f := newFixture(t)
	l := f.claimed(t)

	_, err := f.svc.SetLeadProgress(context.Background(), l.ID, f.sales, domain.ProgressUpdate{ItemsConfirmed: domain.Bool(true)})
	var pre *domain.ErrPrecedingStepIncomplete
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, domain.StepItemsConfirmed, pre.Step)
	assert.Equal(t, domain.StepContactComplete, pre.Requires)

	after := f.stored(t, l.ID)
	assert.False(t, after.ContactComplete)
	assert.False(t, after.ItemsConfirmed)
	assert.Equal(t, l.Version, after.Version)
}

func TestSetLeadProgress_SimultaneousStepsAllowed(t *testing.T) {
	f := newFixture(t)
	l := f.claimed(t)

	got, err := f.svc.SetLeadProgress(context.Background(), l.ID, f.sales, domain.ProgressUpdate{
		ContactComplete: domain.Bool(true),
		ItemsConfirmed:  domain.Bool(true),
	})
	require.NoError(t, err)
	assert.True(t, got.ContactComplete)
	assert.True(t, got.ItemsConfirmed)
	assert.False(t, got.SubmittedToDesign)
}

func TestSetLeadProgress_RequiresClaim(t *testing.T) {
	f := newFixture(t)
	l := f.lead(t)

	_, err := f.svc.SetLeadProgress(context.Background(), l.ID, f.sales, domain.ProgressUpdate{ContactComplete: domain.Bool(true)})
	var nc *domain.ErrNotClaimed
	require.ErrorAs(t, err, &nc)
}

func TestSetLeadProgress_EmptyUpdateRejected(t *testing.T) {
	f := newFixture(t)
	l := f.claimed(t)

	_, err := f.svc.SetLeadProgress(context.Background(), l.ID, f.sales, domain.ProgressUpdate{})
	var v *domain.ErrValidation
	require.ErrorAs(t, err, &v)
}

func TestSetLeadProgress_SubmitNeedsDesignPermission(t *testing.T) {
	f := newFixture(t)
	l := f.claimed(t)
	ctx := context.Background()

	_, err := f.svc.SetLeadProgress(ctx, l.ID, f.sales, domain.ProgressUpdate{
		ContactComplete: domain.Bool(true), ItemsConfirmed: domain.Bool(true),
	})
	require.NoError(t, err)

	_, err = f.svc.SetLeadProgress(ctx, l.ID, f.sales, domain.ProgressUpdate{SubmittedToDesign: domain.Bool(true)})
	var forbidden *domain.ErrForbidden
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, domain.PermSubmitDesign, forbidden.Required)

	got, err := f.svc.SetLeadProgress(ctx, l.ID, f.designer, domain.ProgressUpdate{SubmittedToDesign: domain.Bool(true)})
	require.NoError(t, err)
	assert.Equal(t, domain.StageSubmittedToDesign, got.Stage())
}

func TestSetLeadProgress_RegressionDoesNotCascade(t *testing.T) {
	f := newFixture(t)
	l := f.claimed(t)
	ctx := context.Background()

	_, err := f.svc.SetLeadProgress(ctx, l.ID, f.sales, domain.ProgressUpdate{
		ContactComplete: domain.Bool(true), ItemsConfirmed: domain.Bool(true),
	})
	require.NoError(t, err)

	got, err := f.svc.SetLeadProgress(ctx, l.ID, f.sales, domain.ProgressUpdate{ContactComplete: domain.Bool(false)})
	require.NoError(t, err)
	assert.False(t, got.ContactComplete)
	assert.True(t, got.ItemsConfirmed)
}

func TestSetLeadProgress_CascadingRegression(t *testing.T) {
	f := newFixture(t, service.WithCascadingRegression())
	l := f.claimed(t)
	ctx := context.Background()

	_, err := f.svc.SetLeadProgress(ctx, l.ID, f.sales, domain.ProgressUpdate{
		ContactComplete: domain.Bool(true), ItemsConfirmed: domain.Bool(true),
	})
	require.NoError(t, err)

	got, err := f.svc.SetLeadProgress(ctx, l.ID, f.sales, domain.ProgressUpdate{ContactComplete: domain.Bool(false)})
	require.NoError(t, err)
	assert.False(t, got.ContactComplete)
	assert.False(t, got.ItemsConfirmed)
	assert.False(t, got.SubmittedToDesign)
}

func TestLogContact_FlipsContactComplete(t *testing.T) {
	f := newFixture(t)
	l := f.claimed(t)

	res, err := f.svc.LogContact(context.Background(), l.ID, f.sales, "phone", "  Discussed sizing  ")
	require.NoError(t, err)
	assert.Equal(t, domain.ContactPhone, res.Log.ContactMethod)
	require.NotNil(t, res.Log.Notes)
	assert.Equal(t, "Discussed sizing", *res.Log.Notes)
	assert.Equal(t, f.sales, res.Log.UserID)
	assert.True(t, res.Lead.ContactComplete)
	assert.True(t, f.stored(t, l.ID).ContactComplete)

	logs, err := f.svc.ListContactLogs(context.Background(), l.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, res.Log.ID, logs[0].ID)
}

func TestLogContact_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.claimed(t)
	unclaimed := f.lead(t)

	tests := []struct {
		name   string
		leadID int64
		actor  int64
		method string
		notes  string
		kind   string
	}{
		{"whitespace notes", l.ID, f.sales, "email", "   ", "missing_contact_notes"},
		{"unknown method", l.ID, f.sales, "carrier-pigeon", "hello", "invalid_method"},
		{"unclaimed lead", unclaimed.ID, f.sales, "email", "hello", "not_claimed"},
		{"missing lead", 999, f.sales, "email", "hello", "not_found"},
		{"no contact permission", l.ID, f.designer, "email", "hello", "forbidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.LogContact(ctx, tt.leadID, tt.actor, tt.method, tt.notes)
			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.ErrorKind(err))
		})
	}

	logs, err := f.svc.ListContactLogs(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.False(t, f.stored(t, l.ID).ContactComplete)
}

func TestListContactLogs_MissingLead(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListContactLogs(context.Background(), 999)
	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
}

// conflictingStore loses the first n conditional writes.
type conflictingStore struct {
	*memory.LeadStore
	mu        sync.Mutex
	remaining int
	attempts  int
}

func (s *conflictingStore) lose(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.remaining > 0 {
		s.remaining--
		return true
	}
	return false
}

func (s *conflictingStore) UpdateProgress(ctx context.Context, leadID, expected int64, u domain.ProgressUpdate, at time.Time) (*domain.Lead, error) {
	if s.lose(leadID) {
		return nil, &domain.ErrConcurrentModification{Resource: "lead", ID: "x"}
	}
	return s.LeadStore.UpdateProgress(ctx, leadID, expected, u, at)
}

func (s *conflictingStore) AppendContactLog(ctx context.Context, in *domain.NewContactLog, expected int64) (*domain.ContactLog, *domain.Lead, error) {
	if s.lose(in.LeadID) {
		// A competing writer commits first, so the append below runs against a stale version.
		current, err := s.LeadStore.GetLead(ctx, in.LeadID)
		if err != nil {
			return nil, nil, err
		}
		if _, err := s.LeadStore.UpdateProgress(ctx, in.LeadID, current.Version, domain.ProgressUpdate{ItemsConfirmed: domain.Bool(false)}, fixedNow); err != nil {
			return nil, nil, err
		}
	}
	return s.LeadStore.AppendContactLog(ctx, in, expected)
}

func TestSetLeadProgress_RetriesLostWrites(t *testing.T) {
	base := newFixture(t)
	l := base.claimed(t)

	store := &conflictingStore{LeadStore: base.leads, remaining: 2}
	svc := service.NewLeadService(store, base.principals, base.metrics, zap.NewNop(),
		service.WithConflictRetry(resilience.Config{MaxRetries: 3, InitialBackoff: time.Millisecond}))

	got, err := svc.SetLeadProgress(context.Background(), l.ID, base.sales, domain.ProgressUpdate{ContactComplete: domain.Bool(true)})
	require.NoError(t, err)
	assert.True(t, got.ContactComplete)
	assert.Equal(t, 3, store.attempts)
	assert.Equal(t, int64(2), base.metrics.GetLeadSnapshot().ConflictRetries)
}

func TestSetLeadProgress_GivesUpAfterRetries(t *testing.T) {
	base := newFixture(t)
	l := base.claimed(t)

	store := &conflictingStore{LeadStore: base.leads, remaining: 100}
	svc := service.NewLeadService(store, base.principals, base.metrics, zap.NewNop(),
		service.WithConflictRetry(resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}))

	_, err := svc.SetLeadProgress(context.Background(), l.ID, base.sales, domain.ProgressUpdate{ContactComplete: domain.Bool(true)})
	var cm *domain.ErrConcurrentModification
	require.ErrorAs(t, err, &cm)
	assert.Equal(t, 2, store.attempts)
	assert.False(t, base.stored(t, l.ID).ContactComplete)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.LeadEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e *domain.LeadEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, service.WithEventPublisher(pub))
	l := f.claimed(t)

	_, err := f.svc.LogContact(context.Background(), l.ID, f.sales, "video", "Walkthrough")
	require.NoError(t, err)

	_, err = f.svc.ClaimLead(context.Background(), l.ID, f.rival)
	require.Error(t, err)

	require.Len(t, pub.events, 3)
	assert.Equal(t, domain.EventLeadCreated, pub.events[0].Type)
	assert.Equal(t, domain.EventLeadClaimed, pub.events[1].Type)
	assert.Equal(t, domain.EventLeadContactLogged, pub.events[2].Type)
	assert.NotNil(t, pub.events[2].ContactLog)
	assert.NotEmpty(t, pub.events[2].ID)
	assert.Equal(t, f.sales, pub.events[2].ActorID)
}

func TestEventFailureDoesNotFailOperation(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	f := newFixture(t, service.WithEventPublisher(pub))
	l := f.lead(t)

	res, err := f.svc.ClaimLead(context.Background(), l.ID, f.sales)
	require.NoError(t, err)
	assert.True(t, res.Lead.Claimed)
	assert.Equal(t, int64(2), f.metrics.GetLeadSnapshot().EventsFailed)
}

func TestCacheHoldsPostMutationLead(t *testing.T) {
	c := cache.New[*domain.Lead](time.Minute)
	t.Cleanup(c.Close)
	f := newFixture(t, service.WithCache(c))
	l := f.claimed(t)

	cached, ok := c.Get(cache.LeadKey(l.ID))
	require.True(t, ok)
	assert.True(t, cached.Claimed)

	_, err := f.svc.LogContact(context.Background(), l.ID, f.sales, "email", "Sent quote")
	require.NoError(t, err)

	got, err := f.svc.GetLead(context.Background(), l.ID)
	require.NoError(t, err)
	assert.True(t, got.ContactComplete)
	assert.Equal(t, f.stored(t, l.ID).Version, got.Version)
}

func TestGetLeadDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.claimed(t)
	_, err := f.svc.LogContact(ctx, l.ID, f.sales, "phone", "Intro call")
	require.NoError(t, err)

	detail, err := f.svc.GetLeadDetail(ctx, l.ID, f.sales)
	require.NoError(t, err)
	assert.Equal(t, domain.StageContactComplete, detail.Stage)
	assert.Len(t, detail.Contacts, 1)
	assert.False(t, detail.Actions.CanClaim)
	assert.True(t, detail.Actions.CanLogContact)
	assert.True(t, detail.Actions.CanConfirmItems)
	assert.False(t, detail.Actions.CanSubmitToDesign)

	_, err = f.svc.GetLeadDetail(ctx, 999, f.sales)
	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
}

func TestCreateLead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l, err := f.svc.CreateLead(ctx, f.sales, domain.NewLead{Name: " Acme ", Phone: "555-0100"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", l.Name)
	assert.Equal(t, int64(1), l.Version)
	assert.False(t, l.Claimed)
	assert.Equal(t, domain.DefaultLeadStatus, l.Status)

	_, err = f.svc.CreateLead(ctx, f.sales, domain.NewLead{Name: "No contact"})
	var v *domain.ErrValidation
	require.ErrorAs(t, err, &v)

	_, err = f.svc.CreateLead(ctx, f.designer, domain.NewLead{Name: "X", Phone: "1"})
	var forbidden *domain.ErrForbidden
	require.ErrorAs(t, err, &forbidden)
}

func TestPermissions(t *testing.T) {
	f := newFixture(t)

	p, perms, err := f.svc.Permissions(context.Background(), f.designer)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDesigner, p.Role)
	assert.ElementsMatch(t, []domain.Permission{domain.PermViewLeads, domain.PermSubmitDesign, domain.PermViewOrders}, perms)
}

func TestLogContact_RetryLeavesSingleLogRow(t *testing.T) {
	base := newFixture(t)
	l := base.claimed(t)

	store := &conflictingStore{LeadStore: base.leads, remaining: 1}
	svc := service.NewLeadService(store, base.principals, base.metrics, zap.NewNop(),
		service.WithConflictRetry(resilience.Config{MaxRetries: 3, InitialBackoff: time.Millisecond}))

	res, err := svc.LogContact(context.Background(), l.ID, base.sales, "email", "Sent brochure")
	require.NoError(t, err)
	assert.True(t, res.Lead.ContactComplete)
	assert.Equal(t, 2, store.attempts)
	assert.Equal(t, int64(1), base.metrics.GetLeadSnapshot().ConflictRetries)

	logs, err := base.svc.ListContactLogs(context.Background(), l.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, res.Log.ID, logs[0].ID)
	assert.True(t, base.stored(t, l.ID).ContactComplete)
}

func TestLogContactRacingItemsConfirmation(t *testing.T) {
	f := newFixture(t, service.WithConflictRetry(resilience.Config{MaxRetries: 10, InitialBackoff: time.Millisecond}))
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		l := f.claimed(t)

		var (
			wg                  sync.WaitGroup
			contactErr, itemErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, contactErr = f.svc.LogContact(ctx, l.ID, f.sales, "phone", "Follow-up")
		}()
		go func() {
			defer wg.Done()
			_, itemErr = f.svc.SetLeadProgress(ctx, l.ID, f.sales, domain.ProgressUpdate{ItemsConfirmed: domain.Bool(true)})
		}()
		wg.Wait()

		require.NoError(t, contactErr)
		if itemErr != nil {
			var pre *domain.ErrPrecedingStepIncomplete
			require.ErrorAs(t, itemErr, &pre)
		}

		after := f.stored(t, l.ID)
		assert.True(t, after.ContactComplete, "lead %d lost contactComplete", l.ID)
		assert.Equal(t, itemErr == nil, after.ItemsConfirmed, "lead %d", l.ID)
		if after.ItemsConfirmed {
			assert.True(t, after.ContactComplete)
		}

		logs, err := f.svc.ListContactLogs(ctx, l.ID)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	}
}

func TestLogContactRacingProgressKeepsBothWrites(t *testing.T) {
	f := newFixture(t, service.WithConflictRetry(resilience.Config{MaxRetries: 10, InitialBackoff: time.Millisecond}))
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		l := f.claimed(t)
		_, err := f.svc.SetLeadProgress(ctx, l.ID, f.sales, domain.ProgressUpdate{ContactComplete: domain.Bool(true)})
		require.NoError(t, err)

		var (
			wg                  sync.WaitGroup
			contactErr, itemErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, contactErr = f.svc.LogContact(ctx, l.ID, f.sales, "email", "Quote sent")
		}()
		go func() {
			defer wg.Done()
			_, itemErr = f.svc.SetLeadProgress(ctx, l.ID, f.sales, domain.ProgressUpdate{ItemsConfirmed: domain.Bool(true)})
		}()
		wg.Wait()

		require.NoError(t, contactErr)
		require.NoError(t, itemErr)

		after := f.stored(t, l.ID)
		assert.True(t, after.ContactComplete)
		assert.True(t, after.ItemsConfirmed)
		assert.Equal(t, l.Version+3, after.Version)
	}
}

// pausedReadStore holds its first GetLead result until release is closed.
type pausedReadStore struct {
	*memory.LeadStore
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (s *pausedReadStore) GetLead(ctx context.Context, leadID int64) (*domain.Lead, error) {
	l, err := s.LeadStore.GetLead(ctx, leadID)
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.read)
		<-s.release
	}
	return l, err
}

func TestCacheNotRegressedBySlowRead(t *testing.T) {
	base := newFixture(t)
	l := base.lead(t)

	c := cache.New[*domain.Lead](time.Minute)
	t.Cleanup(c.Close)
	store := &pausedReadStore{LeadStore: base.leads, read: make(chan struct{}), release: make(chan struct{})}
	svc := service.NewLeadService(store, base.principals, base.metrics, zap.NewNop(), service.WithCache(c))

	done := make(chan *domain.Lead)
	go func() {
		stale, err := svc.GetLead(context.Background(), l.ID)
		assert.NoError(t, err)
		done <- stale
	}()

	<-store.read
	_, err := svc.ClaimLead(context.Background(), l.ID, base.sales)
	require.NoError(t, err)
	close(store.release)

	stale := <-done
	assert.False(t, stale.Claimed)

	got, err := svc.GetLead(context.Background(), l.ID)
	require.NoError(t, err)
	assert.True(t, got.Claimed)
	assert.Equal(t, base.stored(t, l.ID).Version, got.Version)
}

func TestGetLeadDetail_ForbiddenBeforeNotFound(t *testing.T) {
	f := newFixture(t)
	contactOnly := f.principal(t, "contact-only@example.com", domain.RoleStaff, []domain.Permission{domain.PermLogContact})

	for i := 0; i < 20; i++ {
		_, err := f.svc.GetLeadDetail(context.Background(), 999, contactOnly)
		require.Error(t, err)
		assert.Equal(t, "forbidden", domain.ErrorKind(err))
	}
}
