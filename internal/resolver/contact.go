package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/crm"
	"github.com/sells-group/crm-resolver/internal/domain"
	"github.com/sells-group/crm-resolver/internal/match"
	"github.com/sells-group/crm-resolver/internal/resilience"
)

// ContactInput identifies the person to resolve inside an already-resolved
// company.
type ContactInput struct {
	Email     string
	NameHint  string
	CompanyID int64
	OwnerID   string
}

// AmbiguousMatchError is returned when two or more contacts in the target
// company tie at the best fuzzy-match score. Candidates are ordered by
// created_at so Candidates[0] is the suggested pick for review.
type AmbiguousMatchError struct {
	Name       string
	Score      float64
	Candidates []crm.Contact
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("resolver: %d contacts tie at similarity %.2f for %q", len(e.Candidates), e.Score, e.Name)
}

// ContactResolver finds or creates the contact for an email within a
// company. The cascade is email-in-company, email-anywhere (relocate),
// fuzzy name match scoped to the company, then create.
type ContactResolver struct {
	store     crm.Store
	matcher   match.NameMatcher
	threshold float64
}

// NewContactResolver creates a contact resolver. threshold is the minimum
// name similarity for a fuzzy match, typically 0.8.
func NewContactResolver(store crm.Store, matcher match.NameMatcher, threshold float64) *ContactResolver {
	return &ContactResolver{store: store, matcher: matcher, threshold: threshold}
}

// Resolve returns the contact for in.Email in in.CompanyID, creating or
// relocating as needed. Email uniqueness races retry once so the loser
// finds the row the winner inserted.
func (r *ContactResolver) Resolve(ctx context.Context, in ContactInput) (*crm.Contact, error) {
	cfg := resilience.UniqueViolationRetry("crm", "create contact")
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*crm.Contact, error) {
		return r.findOrCreate(ctx, in)
	})
}

func (r *ContactResolver) findOrCreate(ctx context.Context, in ContactInput) (*crm.Contact, error) {
	email := strings.TrimSpace(in.Email)

	// Pass 1: email match inside the target company.
	existing, err := r.store.GetContactByEmailInCompany(ctx, email, in.CompanyID)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: lookup contact in company")
	}
	if existing != nil {
		return existing, nil
	}

	// Pass 2: email match anywhere. An email belongs to exactly one
	// person, so the contact moves to the resolved company instead of
	// being duplicated.
	existing, err = r.store.GetContactByEmail(ctx, email)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: lookup contact by email")
	}
	if existing != nil {
		if err := r.store.UpdateContactCompany(ctx, existing.ID, in.CompanyID); err != nil {
			return nil, eris.Wrap(err, "resolver: relocate contact")
		}
		zap.L().Info("contact: relocated",
			zap.Int64("contact_id", existing.ID),
			zap.Int64("from_company_id", existing.CompanyID),
			zap.Int64("to_company_id", in.CompanyID),
		)
		existing.CompanyID = in.CompanyID
		return existing, nil
	}

	// Pass 3: fuzzy name match, scoped to the target company only.
	if name := strings.TrimSpace(in.NameHint); name != "" {
		matched, err := r.fuzzyMatch(ctx, name, in.CompanyID)
		if err != nil {
			return nil, err
		}
		if matched != nil {
			if err := r.store.UpdateContactEmail(ctx, matched.ID, email); err != nil {
				return nil, eris.Wrap(err, "resolver: update contact email")
			}
			zap.L().Info("contact: matched by name, email updated",
				zap.Int64("contact_id", matched.ID),
				zap.String("name", name),
			)
			matched.Email = strings.ToLower(email)
			return matched, nil
		}
	}

	// Pass 4: create. The company's first contact becomes primary.
	return r.create(ctx, in, email)
}

// fuzzyMatch returns the company contact whose name is most similar to
// name, or nil when nothing reaches the threshold. A tie at the top score
// is an AmbiguousMatchError.
func (r *ContactResolver) fuzzyMatch(ctx context.Context, name string, companyID int64) (*crm.Contact, error) {
	contacts, err := r.store.ListContactsByCompany(ctx, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: list company contacts")
	}

	type scored struct {
		contact crm.Contact
		score   float64
	}
	var candidates []scored
	for _, c := range contacts {
		s := r.matcher.Similarity(name, c.FullName())
		if s >= r.threshold {
			candidates = append(candidates, scored{contact: c, score: s})
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].contact.CreatedAt.Before(candidates[j].contact.CreatedAt)
	})

	if len(candidates) > 1 && candidates[1].score == candidates[0].score {
		tied := []crm.Contact{candidates[0].contact}
		for _, c := range candidates[1:] {
			if c.score != candidates[0].score {
				break
			}
			tied = append(tied, c.contact)
		}
		return nil, &AmbiguousMatchError{Name: name, Score: candidates[0].score, Candidates: tied}
	}
	return &candidates[0].contact, nil
}

func (r *ContactResolver) create(ctx context.Context, in ContactInput, email string) (*crm.Contact, error) {
	first, last := splitName(in.NameHint)
	if first == "" {
		first, last = splitName(domain.NameFromLocalPart(domain.LocalPart(email)))
	}

	// Best effort: checked immediately before the insert, not enforced
	// by the database.
	hasContacts, err := r.store.CompanyHasContacts(ctx, in.CompanyID)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: check company contacts")
	}

	rec := &crm.Contact{
		FirstName: first,
		LastName:  last,
		Email:     email,
		CompanyID: in.CompanyID,
		IsPrimary: !hasContacts,
		OwnerID:   in.OwnerID,
	}
	if err := r.store.CreateContact(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "resolver: create contact")
	}

	zap.L().Info("contact: created",
		zap.Int64("contact_id", rec.ID),
		zap.Int64("company_id", in.CompanyID),
		zap.Bool("is_primary", rec.IsPrimary),
	)
	return rec, nil
}

// splitName breaks a free-text name into first token and remainder.
func splitName(name string) (first, last string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}
