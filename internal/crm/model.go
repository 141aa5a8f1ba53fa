// Package crm defines the canonical Company, Contact, Deal, and review
// records the resolution engine operates on.
package crm

import "time"

// Company is a canonical company entity.
type Company struct {
	ID      int64  `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	Domain  string `json:"domain,omitempty" db:"domain"` // empty = NULL, unique (case-insensitive) when set
	OwnerID string `json:"owner_id,omitempty" db:"owner_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Contact is a person belonging to exactly one Company.
type Contact struct {
	ID        int64  `json:"id" db:"id"`
	FirstName string `json:"first_name,omitempty" db:"first_name"`
	LastName  string `json:"last_name,omitempty" db:"last_name"`
	Email     string `json:"email" db:"email"` // required, matched case-insensitively
	CompanyID int64  `json:"company_id" db:"company_id"`
	// IsPrimary marks the company's first contact. At most one per
	// company, best effort; not enforced by the database.
	IsPrimary bool   `json:"is_primary" db:"is_primary"`
	OwnerID   string `json:"owner_id,omitempty" db:"owner_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FullName returns the contact's display name.
func (c Contact) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Deal is a pre-existing CRM record carrying legacy free-text fields.
// The engine only ever rewrites its foreign keys.
type Deal struct {
	ID int64 `json:"id" db:"id"`

	// Legacy free-text fields.
	Company      string `json:"company,omitempty" db:"company"`
	ContactName  string `json:"contact_name,omitempty" db:"contact_name"`
	ContactEmail string `json:"contact_email,omitempty" db:"contact_email"`

	// Resolution targets, null until resolved.
	CompanyID        *int64 `json:"company_id,omitempty" db:"company_id"`
	PrimaryContactID *int64 `json:"primary_contact_id,omitempty" db:"primary_contact_id"`

	OwnerID   string    `json:"owner_id,omitempty" db:"owner_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Resolved reports whether both foreign keys are set.
func (d Deal) Resolved() bool {
	return d.CompanyID != nil && d.PrimaryContactID != nil
}

// ReviewReason classifies why a deal could not be resolved automatically.
type ReviewReason string

// Review reasons.
const (
	ReasonNoEmail              ReviewReason = "no_email"
	ReasonInvalidEmail         ReviewReason = "invalid_email"
	ReasonFuzzyMatchUncertain  ReviewReason = "fuzzy_match_uncertainty"
	ReasonEntityCreationFailed ReviewReason = "entity_creation_failed"
)

// ReviewStatus is the lifecycle state of a review record.
type ReviewStatus string

// Review statuses.
const (
	ReviewPending  ReviewStatus = "pending"
	ReviewResolved ReviewStatus = "resolved"
	ReviewArchived ReviewStatus = "archived"
)

// ReviewRecord captures a deal awaiting human adjudication.
type ReviewRecord struct {
	ID     int64        `json:"id" db:"id"`
	DealID int64        `json:"deal_id" db:"deal_id"`
	Reason ReviewReason `json:"reason" db:"reason"`

	// Original free-text fields, frozen at flag time.
	CompanyText      string `json:"company_text,omitempty" db:"company_text"`
	ContactNameText  string `json:"contact_name_text,omitempty" db:"contact_name_text"`
	ContactEmailText string `json:"contact_email_text,omitempty" db:"contact_email_text"`

	SuggestedCompanyID *int64 `json:"suggested_company_id,omitempty" db:"suggested_company_id"`
	SuggestedContactID *int64 `json:"suggested_contact_id,omitempty" db:"suggested_contact_id"`

	Status     ReviewStatus `json:"status" db:"status"`
	ResolvedBy string       `json:"resolved_by,omitempty" db:"resolved_by"`
	Notes      string       `json:"notes,omitempty" db:"notes"`

	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}
