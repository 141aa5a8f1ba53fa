// Package resolver turns a deal's legacy free-text fields into canonical
// company and contact rows. Every outcome is an explicit Result; a record
// that cannot be resolved automatically carries the review reason instead
// of an error escaping the batch.
package resolver

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/crm"
	"github.com/sells-group/crm-resolver/internal/domain"
	"github.com/sells-group/crm-resolver/internal/match"
)

// Result is the outcome of resolving one deal. Exactly one of the two
// shapes holds: CompanyID/ContactID set on success, or Failure (with an
// optional Err and suggestion IDs) when the deal needs human review.
type Result struct {
	DealID    int64
	CompanyID int64
	ContactID int64

	Failure crm.ReviewReason
	Err     error

	// Suggestions for the review queue, when available.
	SuggestedCompanyID *int64
	SuggestedContactID *int64
}

// OK reports whether the deal resolved automatically.
func (r Result) OK() bool {
	return r.Failure == ""
}

// Pipeline wires the email classifier and the two resolvers into a single
// per-deal pass.
type Pipeline struct {
	classifier *domain.Classifier
	companies  *CompanyResolver
	contacts   *ContactResolver
}

// New creates a pipeline. threshold is the fuzzy name-match minimum.
func New(store crm.Store, classifier *domain.Classifier, matcher match.NameMatcher, threshold float64) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		companies:  NewCompanyResolver(store),
		contacts:   NewContactResolver(store, matcher, threshold),
	}
}

// Resolve runs the full cascade for one deal. It never writes the deal
// row itself; callers persist the FKs or flag the review.
func (p *Pipeline) Resolve(ctx context.Context, deal crm.Deal) Result {
	res := Result{DealID: deal.ID}

	email := strings.TrimSpace(deal.ContactEmail)
	if email == "" {
		res.Failure = crm.ReasonNoEmail
		return res
	}

	cls := p.classifier.Classify(email)
	if !cls.Valid {
		res.Failure = crm.ReasonInvalidEmail
		return res
	}

	company, created, err := p.companies.Resolve(ctx, CompanyInput{
		Domain:   cls.Domain,
		Personal: cls.Personal,
		NameHint: deal.Company,
		OwnerID:  deal.OwnerID,
	})
	if err != nil {
		res.Failure = crm.ReasonEntityCreationFailed
		res.Err = err
		return res
	}

	contact, err := p.contacts.Resolve(ctx, ContactInput{
		Email:     email,
		NameHint:  deal.ContactName,
		CompanyID: company.ID,
		OwnerID:   deal.OwnerID,
	})
	if err != nil {
		var ambiguous *AmbiguousMatchError
		if errors.As(err, &ambiguous) {
			res.Failure = crm.ReasonFuzzyMatchUncertain
			res.Err = err
			res.SuggestedCompanyID = &company.ID
			res.SuggestedContactID = &ambiguous.Candidates[0].ID
			return res
		}
		res.Failure = crm.ReasonEntityCreationFailed
		res.Err = err
		res.SuggestedCompanyID = &company.ID
		return res
	}

	zap.L().Debug("deal: resolved",
		zap.Int64("deal_id", deal.ID),
		zap.Int64("company_id", company.ID),
		zap.Int64("contact_id", contact.ID),
		zap.Bool("company_created", created),
	)
	res.CompanyID = company.ID
	res.ContactID = contact.ID
	return res
}
