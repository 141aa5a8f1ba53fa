package crm

import (
	"context"
	"time"
)

// Store defines persistence operations for the resolution data model.
type Store interface {
	// Companies
	CreateCompany(ctx context.Context, c *Company) error
	GetCompany(ctx context.Context, id int64) (*Company, error)
	GetCompanyByDomain(ctx context.Context, domain string) (*Company, error)
	GetCompanyByNameOwner(ctx context.Context, name, ownerID string) (*Company, error)

	// Contacts
	CreateContact(ctx context.Context, c *Contact) error
	GetContact(ctx context.Context, id int64) (*Contact, error)
	GetContactByEmail(ctx context.Context, email string) (*Contact, error)
	GetContactByEmailInCompany(ctx context.Context, email string, companyID int64) (*Contact, error)
	ListContactsByCompany(ctx context.Context, companyID int64) ([]Contact, error)
	CompanyHasContacts(ctx context.Context, companyID int64) (bool, error)
	UpdateContactCompany(ctx context.Context, contactID, companyID int64) error
	UpdateContactEmail(ctx context.Context, contactID int64, email string) error

	// Deals
	GetDeal(ctx context.Context, id int64) (*Deal, error)
	ListUnresolvedDeals(ctx context.Context, limit int, minCreatedAt time.Time) ([]Deal, error)
	SetDealResolution(ctx context.Context, dealID, companyID, contactID int64) error

	// Reviews
	UpsertPendingReview(ctx context.Context, r *ReviewRecord) error
	ArchivePendingReview(ctx context.Context, dealID int64) error
	GetReview(ctx context.Context, id int64) (*ReviewRecord, error)
	PendingReviews(ctx context.Context, limit int) ([]ReviewRecord, error)
	PendingReviewByDeal(ctx context.Context, dealID int64) (*ReviewRecord, error)
	ResolveReview(ctx context.Context, reviewID, companyID, contactID int64, resolvedBy, notes string) error
}
