// Package review manages the human-adjudication queue for deals the
// resolver could not settle automatically.
package review

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/crm"
	"github.com/sells-group/crm-resolver/internal/resolver"
)

// Queue is the review workflow over the crm store.
type Queue struct {
	store crm.Store
}

// NewQueue creates a review queue.
func NewQueue(store crm.Store) *Queue {
	return &Queue{store: store}
}

// Flag records a failed resolution for the deal. It is idempotent: a deal
// with a pending review gets that review refreshed in place, never a
// second pending row.
func (q *Queue) Flag(ctx context.Context, deal crm.Deal, res resolver.Result) (int64, error) {
	if res.Failure == "" {
		return 0, eris.Errorf("review: deal %d has no failure to flag", deal.ID)
	}

	rec := &crm.ReviewRecord{
		DealID:             deal.ID,
		Reason:             res.Failure,
		CompanyText:        deal.Company,
		ContactNameText:    deal.ContactName,
		ContactEmailText:   deal.ContactEmail,
		SuggestedCompanyID: res.SuggestedCompanyID,
		SuggestedContactID: res.SuggestedContactID,
	}
	if err := q.store.UpsertPendingReview(ctx, rec); err != nil {
		return 0, eris.Wrap(err, "review: flag deal")
	}

	zap.L().Info("review: flagged",
		zap.Int64("deal_id", deal.ID),
		zap.Int64("review_id", rec.ID),
		zap.String("reason", string(res.Failure)),
	)
	return rec.ID, nil
}

// ArchivePending closes the deal's pending review, if any. Called when a
// later resolution pass succeeds on a previously flagged deal; a resolved
// deal and a pending review must never coexist.
func (q *Queue) ArchivePending(ctx context.Context, dealID int64) error {
	if err := q.store.ArchivePendingReview(ctx, dealID); err != nil {
		return eris.Wrap(err, "review: archive pending")
	}
	return nil
}

// Resolve applies a human decision: sets the deal's foreign keys and
// closes the review in one transaction. companyID and contactID must
// reference existing rows.
func (q *Queue) Resolve(ctx context.Context, reviewID, companyID, contactID int64, resolvedBy, notes string) error {
	company, err := q.store.GetCompany(ctx, companyID)
	if err != nil {
		return eris.Wrap(err, "review: check company")
	}
	if company == nil {
		return eris.Errorf("review: company %d not found", companyID)
	}
	contact, err := q.store.GetContact(ctx, contactID)
	if err != nil {
		return eris.Wrap(err, "review: check contact")
	}
	if contact == nil {
		return eris.Errorf("review: contact %d not found", contactID)
	}
	if contact.CompanyID != companyID {
		return eris.Errorf("review: contact %d belongs to company %d, not %d",
			contactID, contact.CompanyID, companyID)
	}

	if err := q.store.ResolveReview(ctx, reviewID, companyID, contactID, resolvedBy, notes); err != nil {
		return eris.Wrap(err, "review: resolve")
	}

	zap.L().Info("review: resolved",
		zap.Int64("review_id", reviewID),
		zap.Int64("company_id", companyID),
		zap.Int64("contact_id", contactID),
		zap.String("resolved_by", resolvedBy),
	)
	return nil
}

// Pending lists open reviews, oldest first. limit <= 0 means no limit.
func (q *Queue) Pending(ctx context.Context, limit int) ([]crm.ReviewRecord, error) {
	recs, err := q.store.PendingReviews(ctx, limit)
	if err != nil {
		return nil, eris.Wrap(err, "review: list pending")
	}
	return recs, nil
}
