// Package crmtest provides an in-memory Store for tests. It mirrors the
// Postgres store's semantics: case-insensitive email and domain lookups,
// uniqueness on company domain and contact email, and at most one pending
// review per deal.
package crmtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-resolver/internal/crm"
)

// MemStore is an in-memory crm.Store.
type MemStore struct {
	mu sync.Mutex

	Companies map[int64]*crm.Company
	Contacts  map[int64]*crm.Contact
	Deals     map[int64]*crm.Deal
	Reviews   map[int64]*crm.ReviewRecord

	// ForcedErr makes the named method fail once with the given error.
	ForcedErr map[string]error

	nextID int64
	clock  time.Time
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		Companies: make(map[int64]*crm.Company),
		Contacts:  make(map[int64]*crm.Contact),
		Deals:     make(map[int64]*crm.Deal),
		Reviews:   make(map[int64]*crm.ReviewRecord),
		ForcedErr: make(map[string]error),
		clock:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// AddDeal seeds a deal and returns its ID.
func (s *MemStore) AddDeal(d crm.Deal) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = s.id()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.tick()
	}
	s.Deals[d.ID] = &d
	return d.ID
}

func (s *MemStore) id() int64 {
	s.nextID++
	return s.nextID
}

// tick returns a strictly increasing timestamp so created_at ordering
// is deterministic.
func (s *MemStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *MemStore) forced(method string) error {
	if err, ok := s.ForcedErr[method]; ok {
		delete(s.ForcedErr, method)
		return err
	}
	return nil
}

// UniqueViolation builds the Postgres error the real store surfaces when
// a uniqueness race is lost.
func UniqueViolation(constraint string) error {
	return eris.Wrap(&pgconn.PgError{Code: "23505", ConstraintName: constraint}, "crmtest: create")
}

func (s *MemStore) CreateCompany(_ context.Context, c *crm.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.forced("CreateCompany"); err != nil {
		return err
	}
	if c.Domain != "" {
		for _, existing := range s.Companies {
			if strings.EqualFold(existing.Domain, c.Domain) {
				return UniqueViolation("companies_domain_key")
			}
		}
	}
	c.ID = s.id()
	c.Domain = strings.ToLower(c.Domain)
	c.CreatedAt = s.tick()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	s.Companies[c.ID] = &cp
	return nil
}

func (s *MemStore) GetCompany(_ context.Context, id int64) (*crm.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.Companies[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *MemStore) GetCompanyByDomain(_ context.Context, domain string) (*crm.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.forced("GetCompanyByDomain"); err != nil {
		return nil, err
	}
	for _, c := range s.sortedCompanies() {
		if c.Domain != "" && strings.EqualFold(c.Domain, domain) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemStore) GetCompanyByNameOwner(_ context.Context, name, ownerID string) (*crm.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.sortedCompanies() {
		if strings.EqualFold(c.Name, name) && c.OwnerID == ownerID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemStore) CreateContact(_ context.Context, c *crm.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.forced("CreateContact"); err != nil {
		return err
	}
	for _, existing := range s.Contacts {
		if strings.EqualFold(existing.Email, c.Email) {
			return UniqueViolation("contacts_email_key")
		}
	}
	c.ID = s.id()
	c.Email = strings.ToLower(c.Email)
	c.CreatedAt = s.tick()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	s.Contacts[c.ID] = &cp
	return nil
}

func (s *MemStore) GetContact(_ context.Context, id int64) (*crm.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.Contacts[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *MemStore) GetContactByEmail(_ context.Context, email string) (*crm.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.sortedContacts(0) {
		if strings.EqualFold(c.Email, email) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemStore) GetContactByEmailInCompany(_ context.Context, email string, companyID int64) (*crm.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.sortedContacts(companyID) {
		if strings.EqualFold(c.Email, email) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemStore) ListContactsByCompany(_ context.Context, companyID int64) ([]crm.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []crm.Contact
	for _, c := range s.sortedContacts(companyID) {
		out = append(out, *c)
	}
	return out, nil
}

func (s *MemStore) CompanyHasContacts(_ context.Context, companyID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.forced("CompanyHasContacts"); err != nil {
		return false, err
	}
	for _, c := range s.Contacts {
		if c.CompanyID == companyID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) UpdateContactCompany(_ context.Context, contactID, companyID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Contacts[contactID]
	if !ok {
		return eris.Errorf("crmtest: no contact %d", contactID)
	}
	c.CompanyID = companyID
	c.UpdatedAt = s.tick()
	return nil
}

func (s *MemStore) UpdateContactEmail(_ context.Context, contactID int64, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Contacts[contactID]
	if !ok {
		return eris.Errorf("crmtest: no contact %d", contactID)
	}
	c.Email = strings.ToLower(email)
	c.UpdatedAt = s.tick()
	return nil
}

func (s *MemStore) GetDeal(_ context.Context, id int64) (*crm.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.Deals[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (s *MemStore) ListUnresolvedDeals(_ context.Context, limit int, minCreatedAt time.Time) ([]crm.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.forced("ListUnresolvedDeals"); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(s.Deals))
	for id := range s.Deals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []crm.Deal
	for _, id := range ids {
		d := s.Deals[id]
		if d.CompanyID != nil || d.PrimaryContactID != nil {
			continue
		}
		if d.Company == "" && d.ContactName == "" && d.ContactEmail == "" {
			continue
		}
		if !minCreatedAt.IsZero() && d.CreatedAt.Before(minCreatedAt) {
			continue
		}
		out = append(out, *d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) SetDealResolution(_ context.Context, dealID, companyID, contactID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.forced("SetDealResolution"); err != nil {
		return err
	}
	d, ok := s.Deals[dealID]
	if !ok {
		return eris.Errorf("crmtest: no deal %d", dealID)
	}
	d.CompanyID = &companyID
	d.PrimaryContactID = &contactID
	d.UpdatedAt = s.tick()
	return nil
}

func (s *MemStore) UpsertPendingReview(_ context.Context, r *crm.ReviewRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.forced("UpsertPendingReview"); err != nil {
		return err
	}
	for _, existing := range s.Reviews {
		if existing.DealID == r.DealID && existing.Status == crm.ReviewPending {
			existing.Reason = r.Reason
			existing.CompanyText = r.CompanyText
			existing.ContactNameText = r.ContactNameText
			existing.ContactEmailText = r.ContactEmailText
			existing.SuggestedCompanyID = r.SuggestedCompanyID
			existing.SuggestedContactID = r.SuggestedContactID
			*r = *existing
			return nil
		}
	}
	r.ID = s.id()
	r.Status = crm.ReviewPending
	r.CreatedAt = s.tick()
	cp := *r
	s.Reviews[r.ID] = &cp
	return nil
}

func (s *MemStore) ArchivePendingReview(_ context.Context, dealID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.forced("ArchivePendingReview"); err != nil {
		return err
	}
	for _, r := range s.Reviews {
		if r.DealID == dealID && r.Status == crm.ReviewPending {
			now := s.tick()
			r.Status = crm.ReviewArchived
			r.ResolvedAt = &now
		}
	}
	return nil
}

func (s *MemStore) GetReview(_ context.Context, id int64) (*crm.ReviewRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.Reviews[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *MemStore) PendingReviews(_ context.Context, limit int) ([]crm.ReviewRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.Reviews))
	for id, r := range s.Reviews {
		if r.Status == crm.ReviewPending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []crm.ReviewRecord
	for _, id := range ids {
		out = append(out, *s.Reviews[id])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) PendingReviewByDeal(_ context.Context, dealID int64) (*crm.ReviewRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.Reviews {
		if r.DealID == dealID && r.Status == crm.ReviewPending {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemStore) ResolveReview(_ context.Context, reviewID, companyID, contactID int64, resolvedBy, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.forced("ResolveReview"); err != nil {
		return err
	}
	r, ok := s.Reviews[reviewID]
	if !ok || r.Status != crm.ReviewPending {
		return eris.Errorf("crmtest: review %d is not pending", reviewID)
	}
	d, ok := s.Deals[r.DealID]
	if !ok {
		return eris.Errorf("crmtest: no deal %d", r.DealID)
	}
	d.CompanyID = &companyID
	d.PrimaryContactID = &contactID
	now := s.tick()
	d.UpdatedAt = now
	r.Status = crm.ReviewResolved
	r.ResolvedBy = resolvedBy
	r.Notes = notes
	r.ResolvedAt = &now
	return nil
}

func (s *MemStore) sortedCompanies() []*crm.Company {
	ids := make([]int64, 0, len(s.Companies))
	for id := range s.Companies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*crm.Company, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Companies[id])
	}
	return out
}

// sortedContacts returns contacts ordered by created_at then id, optionally
// filtered to one company (companyID 0 = all).
func (s *MemStore) sortedContacts(companyID int64) []*crm.Contact {
	out := make([]*crm.Contact, 0, len(s.Contacts))
	for _, c := range s.Contacts {
		if companyID != 0 && c.CompanyID != companyID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

var _ crm.Store = (*MemStore)(nil)
