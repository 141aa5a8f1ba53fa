package resolver

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/crm"
	"github.com/sells-group/crm-resolver/internal/domain"
	"github.com/sells-group/crm-resolver/internal/resilience"
)

// CompanyInput carries the blocking keys for a company lookup. Domain is
// only used when Personal is false: a shared mailbox provider must never
// become a company identity.
type CompanyInput struct {
	Domain   string
	Personal bool
	NameHint string
	OwnerID  string
}

// CompanyResolver deduplicates companies with a two-pass cascade:
//  1. Exact domain match (blocking key, case-insensitive).
//  2. Exact name match scoped to the owner, so different owners' books
//     never merge.
//
// A miss creates the company. Creation races on the domain uniqueness
// constraint are retried once so the loser picks up the winner's row.
type CompanyResolver struct {
	store crm.Store
}

// NewCompanyResolver creates a company resolver.
func NewCompanyResolver(store crm.Store) *CompanyResolver {
	return &CompanyResolver{store: store}
}

// Resolve returns the matching or newly created company, and whether it
// was created by this call.
func (r *CompanyResolver) Resolve(ctx context.Context, in CompanyInput) (*crm.Company, bool, error) {
	var created bool
	cfg := resilience.UniqueViolationRetry("crm", "create company")
	c, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*crm.Company, error) {
		created = false
		return r.findOrCreate(ctx, in, &created)
	})
	if err != nil {
		return nil, false, err
	}
	return c, created, nil
}

func (r *CompanyResolver) findOrCreate(ctx context.Context, in CompanyInput, created *bool) (*crm.Company, error) {
	blockOnDomain := in.Domain != "" && !in.Personal

	// Pass 1: exact domain match. A hit always beats a name match.
	if blockOnDomain {
		existing, err := r.store.GetCompanyByDomain(ctx, in.Domain)
		if err != nil {
			return nil, eris.Wrap(err, "resolver: lookup company by domain")
		}
		if existing != nil {
			zap.L().Debug("company: matched by domain",
				zap.String("domain", in.Domain),
				zap.Int64("company_id", existing.ID),
			)
			return existing, nil
		}
	}

	name := strings.TrimSpace(in.NameHint)
	if name == "" && blockOnDomain {
		name = domain.NameFromDomain(in.Domain)
	}
	if name == "" {
		return nil, eris.New("resolver: company needs a domain or a name")
	}

	// Pass 2: name + owner, only when there is no usable domain. When a
	// domain exists but missed, the domain is a stronger identity than
	// the name and a fresh company is created instead.
	if !blockOnDomain {
		existing, err := r.store.GetCompanyByNameOwner(ctx, name, in.OwnerID)
		if err != nil {
			return nil, eris.Wrap(err, "resolver: lookup company by name")
		}
		if existing != nil {
			zap.L().Debug("company: matched by name+owner",
				zap.String("name", name),
				zap.Int64("company_id", existing.ID),
			)
			return existing, nil
		}
	}

	rec := &crm.Company{Name: name, OwnerID: in.OwnerID}
	if blockOnDomain {
		rec.Domain = strings.ToLower(in.Domain)
	}
	if err := r.store.CreateCompany(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "resolver: create company")
	}
	*created = true

	zap.L().Info("company: created",
		zap.Int64("company_id", rec.ID),
		zap.String("name", rec.Name),
		zap.String("domain", rec.Domain),
	)
	return rec, nil
}
