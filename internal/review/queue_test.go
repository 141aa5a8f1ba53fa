package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-resolver/internal/crm"
	"github.com/sells-group/crm-resolver/internal/crm/crmtest"
	"github.com/sells-group/crm-resolver/internal/resolver"
)

func TestFlagIsIdempotent(t *testing.T) {
	store := crmtest.NewMemStore()
	ctx := context.Background()
	q := NewQueue(store)

	deal := crm.Deal{Company: "Acme", ContactName: "Jane"}
	deal.ID = store.AddDeal(deal)

	first, err := q.Flag(ctx, deal, resolver.Result{DealID: deal.ID, Failure: crm.ReasonNoEmail})
	require.NoError(t, err)

	second, err := q.Flag(ctx, deal, resolver.Result{DealID: deal.ID, Failure: crm.ReasonInvalidEmail})
	require.NoError(t, err)

	assert.Equal(t, first, second, "re-flagging must reuse the pending review")
	assert.Len(t, store.Reviews, 1)

	rec, err := store.GetReview(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, crm.ReasonInvalidEmail, rec.Reason, "re-flag refreshes the reason")
}

func TestFlagRequiresFailure(t *testing.T) {
	q := NewQueue(crmtest.NewMemStore())
	_, err := q.Flag(context.Background(), crm.Deal{ID: 1}, resolver.Result{DealID: 1})
	assert.Error(t, err)
}

func TestArchivePending(t *testing.T) {
	store := crmtest.NewMemStore()
	ctx := context.Background()
	q := NewQueue(store)

	deal := crm.Deal{Company: "Acme"}
	deal.ID = store.AddDeal(deal)
	reviewID, err := q.Flag(ctx, deal, resolver.Result{DealID: deal.ID, Failure: crm.ReasonNoEmail})
	require.NoError(t, err)

	require.NoError(t, q.ArchivePending(ctx, deal.ID))

	pending, err := store.PendingReviewByDeal(ctx, deal.ID)
	require.NoError(t, err)
	assert.Nil(t, pending)

	rec, err := store.GetReview(ctx, reviewID)
	require.NoError(t, err)
	assert.Equal(t, crm.ReviewArchived, rec.Status)
	require.NotNil(t, rec.ResolvedAt)

	// No pending review is a no-op.
	require.NoError(t, q.ArchivePending(ctx, deal.ID))
}

func TestResolveSetsDealAndClosesReview(t *testing.T) {
	store := crmtest.NewMemStore()
	ctx := context.Background()
	q := NewQueue(store)

	company := &crm.Company{Name: "Acme"}
	require.NoError(t, store.CreateCompany(ctx, company))
	contact := &crm.Contact{FirstName: "Jane", Email: "jane@acme.com", CompanyID: company.ID}
	require.NoError(t, store.CreateContact(ctx, contact))

	deal := crm.Deal{Company: "Acme"}
	deal.ID = store.AddDeal(deal)
	reviewID, err := q.Flag(ctx, deal, resolver.Result{DealID: deal.ID, Failure: crm.ReasonNoEmail})
	require.NoError(t, err)

	require.NoError(t, q.Resolve(ctx, reviewID, company.ID, contact.ID, "ops@example.com", "confirmed"))

	got, err := store.GetDeal(ctx, deal.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompanyID)
	require.NotNil(t, got.PrimaryContactID)
	assert.Equal(t, company.ID, *got.CompanyID)
	assert.Equal(t, contact.ID, *got.PrimaryContactID)

	rec, err := store.GetReview(ctx, reviewID)
	require.NoError(t, err)
	assert.Equal(t, crm.ReviewResolved, rec.Status)
	assert.Equal(t, "ops@example.com", rec.ResolvedBy)
	require.NotNil(t, rec.ResolvedAt)

	// A closed review cannot be resolved twice.
	assert.Error(t, q.Resolve(ctx, reviewID, company.ID, contact.ID, "ops@example.com", ""))
}

func TestResolveValidatesTargets(t *testing.T) {
	store := crmtest.NewMemStore()
	ctx := context.Background()
	q := NewQueue(store)

	company := &crm.Company{Name: "Acme"}
	require.NoError(t, store.CreateCompany(ctx, company))
	other := &crm.Company{Name: "Other"}
	require.NoError(t, store.CreateCompany(ctx, other))
	contact := &crm.Contact{FirstName: "Jane", Email: "jane@acme.com", CompanyID: company.ID}
	require.NoError(t, store.CreateContact(ctx, contact))

	deal := crm.Deal{Company: "Acme"}
	deal.ID = store.AddDeal(deal)
	reviewID, err := q.Flag(ctx, deal, resolver.Result{DealID: deal.ID, Failure: crm.ReasonNoEmail})
	require.NoError(t, err)

	assert.Error(t, q.Resolve(ctx, reviewID, 999, contact.ID, "ops", ""), "unknown company")
	assert.Error(t, q.Resolve(ctx, reviewID, company.ID, 999, "ops", ""), "unknown contact")
	assert.Error(t, q.Resolve(ctx, reviewID, other.ID, contact.ID, "ops", ""), "contact outside company")
}

func TestPending(t *testing.T) {
	store := crmtest.NewMemStore()
	ctx := context.Background()
	q := NewQueue(store)

	for i := 0; i < 3; i++ {
		deal := crm.Deal{Company: "Acme"}
		deal.ID = store.AddDeal(deal)
		_, err := q.Flag(ctx, deal, resolver.Result{DealID: deal.ID, Failure: crm.ReasonNoEmail})
		require.NoError(t, err)
	}

	all, err := q.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := q.Pending(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
