package crm

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-resolver/internal/db"
)

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateCompany inserts a new company and sets its ID. An empty domain is
// stored as NULL so it does not collide on the unique domain index.
func (s *PostgresStore) CreateCompany(ctx context.Context, c *Company) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO companies (name, domain, owner_id)
		VALUES ($1, NULLIF(lower($2), ''), $3)
		RETURNING id, created_at, updated_at`,
		c.Name, c.Domain, c.OwnerID,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return eris.Wrap(err, "crm: create company")
	}
	return nil
}

// GetCompany fetches a company by ID.
func (s *PostgresStore) GetCompany(ctx context.Context, id int64) (*Company, error) {
	c := &Company{}
	err := s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id=$1`, id).
		Scan(companyDests(c)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "crm: get company %d", id)
	}
	return c, nil
}

// GetCompanyByDomain fetches a company by its domain, case-insensitively.
func (s *PostgresStore) GetCompanyByDomain(ctx context.Context, domain string) (*Company, error) {
	c := &Company{}
	err := s.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE lower(domain)=lower($1)`, domain).
		Scan(companyDests(c)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "crm: get company by domain %s", domain)
	}
	return c, nil
}

// GetCompanyByNameOwner fetches a company by exact name match scoped to an
// owner. Name collisions across owners are expected and must not merge.
func (s *PostgresStore) GetCompanyByNameOwner(ctx context.Context, name, ownerID string) (*Company, error) {
	c := &Company{}
	err := s.pool.QueryRow(ctx, `
		SELECT `+companyColumns+`
		FROM companies
		WHERE lower(name)=lower($1) AND owner_id=$2
		ORDER BY id
		LIMIT 1`, name, ownerID).
		Scan(companyDests(c)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "crm: get company by name %q", name)
	}
	return c, nil
}

// CreateContact inserts a new contact and sets its ID.
func (s *PostgresStore) CreateContact(ctx context.Context, c *Contact) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO contacts (first_name, last_name, email, company_id, is_primary, owner_id)
		VALUES ($1, NULLIF($2, ''), lower($3), $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		c.FirstName, c.LastName, c.Email, c.CompanyID, c.IsPrimary, c.OwnerID,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return eris.Wrap(err, "crm: create contact")
	}
	c.Email = strings.ToLower(c.Email)
	return nil
}

// GetContact fetches a contact by ID.
func (s *PostgresStore) GetContact(ctx context.Context, id int64) (*Contact, error) {
	c := &Contact{}
	err := s.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id=$1`, id).
		Scan(contactDests(c)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "crm: get contact %d", id)
	}
	return c, nil
}

// GetContactByEmail fetches a contact by email anywhere in the CRM.
func (s *PostgresStore) GetContactByEmail(ctx context.Context, email string) (*Contact, error) {
	c := &Contact{}
	err := s.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE lower(email)=lower($1) LIMIT 1`, email).
		Scan(contactDests(c)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "crm: get contact by email")
	}
	return c, nil
}

// GetContactByEmailInCompany fetches a contact by email within one company.
func (s *PostgresStore) GetContactByEmailInCompany(ctx context.Context, email string, companyID int64) (*Contact, error) {
	c := &Contact{}
	err := s.pool.QueryRow(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE lower(email)=lower($1) AND company_id=$2
		LIMIT 1`, email, companyID).
		Scan(contactDests(c)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "crm: get contact by email in company %d", companyID)
	}
	return c, nil
}

// ListContactsByCompany returns a company's contacts, oldest first so
// fuzzy-match ties break toward the earliest record.
func (s *PostgresStore) ListContactsByCompany(ctx context.Context, companyID int64) ([]Contact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE company_id=$1
		ORDER BY created_at, id`, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "crm: list contacts for company %d", companyID)
	}
	defer rows.Close()
	return scanContacts(rows)
}

// CompanyHasContacts reports whether a company has any contact rows.
func (s *PostgresStore) CompanyHasContacts(ctx context.Context, companyID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM contacts WHERE company_id=$1)`, companyID).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "crm: has contacts for company %d", companyID)
	}
	return exists, nil
}

// UpdateContactCompany relocates a contact to a different company.
func (s *PostgresStore) UpdateContactCompany(ctx context.Context, contactID, companyID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contacts SET company_id=$2, updated_at=now() WHERE id=$1`, contactID, companyID)
	if err != nil {
		return eris.Wrapf(err, "crm: relocate contact %d", contactID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("crm: relocate contact %d: no such contact", contactID)
	}
	return nil
}

// UpdateContactEmail sets a contact's email.
func (s *PostgresStore) UpdateContactEmail(ctx context.Context, contactID int64, email string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contacts SET email=lower($2), updated_at=now() WHERE id=$1`, contactID, email)
	if err != nil {
		return eris.Wrapf(err, "crm: update contact %d email", contactID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("crm: update contact %d email: no such contact", contactID)
	}
	return nil
}

// GetDeal fetches a deal by ID.
func (s *PostgresStore) GetDeal(ctx context.Context, id int64) (*Deal, error) {
	d := &Deal{}
	err := s.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id=$1`, id).
		Scan(dealDests(d)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "crm: get deal %d", id)
	}
	return d, nil
}

// ListUnresolvedDeals returns candidate deals: both foreign keys null and
// at least one legacy free-text field present. limit <= 0 means no limit;
// a zero minCreatedAt means no lower bound.
func (s *PostgresStore) ListUnresolvedDeals(ctx context.Context, limit int, minCreatedAt time.Time) ([]Deal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+dealColumns+`
		FROM deals
		WHERE company_id IS NULL
		  AND primary_contact_id IS NULL
		  AND (company <> '' OR contact_name <> '' OR contact_email <> '')
		  AND ($1::timestamptz IS NULL OR created_at >= $1)
		ORDER BY id
		LIMIT $2`,
		nilIfZeroTime(minCreatedAt), nilIfNonPositive(limit))
	if err != nil {
		return nil, eris.Wrap(err, "crm: list unresolved deals")
	}
	defer rows.Close()

	var deals []Deal
	for rows.Next() {
		var d Deal
		if err := rows.Scan(dealDests(&d)...); err != nil {
			return nil, eris.Wrap(err, "crm: scan deal")
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// SetDealResolution writes both resolved foreign keys onto a deal.
func (s *PostgresStore) SetDealResolution(ctx context.Context, dealID, companyID, contactID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE deals SET company_id=$2, primary_contact_id=$3, updated_at=now()
		WHERE id=$1`, dealID, companyID, contactID)
	if err != nil {
		return eris.Wrapf(err, "crm: resolve deal %d", dealID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("crm: resolve deal %d: no such deal", dealID)
	}
	return nil
}

// UpsertPendingReview inserts a pending review for a deal, or refreshes the
// existing pending one. The partial unique index on (deal_id) where
// status='pending' guarantees at most one pending review per deal.
func (s *PostgresStore) UpsertPendingReview(ctx context.Context, r *ReviewRecord) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO deal_reviews
			(deal_id, reason, company_text, contact_name_text, contact_email_text,
			 suggested_company_id, suggested_contact_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		ON CONFLICT (deal_id) WHERE status = 'pending' DO UPDATE SET
			reason = EXCLUDED.reason,
			company_text = EXCLUDED.company_text,
			contact_name_text = EXCLUDED.contact_name_text,
			contact_email_text = EXCLUDED.contact_email_text,
			suggested_company_id = EXCLUDED.suggested_company_id,
			suggested_contact_id = EXCLUDED.suggested_contact_id
		RETURNING id, status, created_at`,
		r.DealID, r.Reason, r.CompanyText, r.ContactNameText, r.ContactEmailText,
		r.SuggestedCompanyID, r.SuggestedContactID,
	).Scan(&r.ID, &r.Status, &r.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "crm: flag deal %d for review", r.DealID)
	}
	return nil
}

// ArchivePendingReview closes a deal's pending review, if any. A resolved
// deal must never carry a live pending review, so the success path calls
// this right after the foreign keys are written. No pending review is a
// no-op.
func (s *PostgresStore) ArchivePendingReview(ctx context.Context, dealID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE deal_reviews
		SET status='archived', resolved_at=now()
		WHERE deal_id=$1 AND status='pending'`, dealID)
	if err != nil {
		return eris.Wrapf(err, "crm: archive pending review for deal %d", dealID)
	}
	return nil
}

// GetReview fetches a review record by ID.
func (s *PostgresStore) GetReview(ctx context.Context, id int64) (*ReviewRecord, error) {
	r := &ReviewRecord{}
	err := s.pool.QueryRow(ctx, `SELECT `+reviewColumns+` FROM deal_reviews WHERE id=$1`, id).
		Scan(reviewDests(r)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "crm: get review %d", id)
	}
	return r, nil
}

// PendingReviews returns pending review records, oldest first.
func (s *PostgresStore) PendingReviews(ctx context.Context, limit int) ([]ReviewRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+reviewColumns+`
		FROM deal_reviews
		WHERE status='pending'
		ORDER BY created_at, id
		LIMIT $1`, nilIfNonPositive(limit))
	if err != nil {
		return nil, eris.Wrap(err, "crm: list pending reviews")
	}
	defer rows.Close()

	var reviews []ReviewRecord
	for rows.Next() {
		var r ReviewRecord
		if err := rows.Scan(reviewDests(&r)...); err != nil {
			return nil, eris.Wrap(err, "crm: scan review")
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// PendingReviewByDeal returns a deal's pending review, if any.
func (s *PostgresStore) PendingReviewByDeal(ctx context.Context, dealID int64) (*ReviewRecord, error) {
	r := &ReviewRecord{}
	err := s.pool.QueryRow(ctx, `
		SELECT `+reviewColumns+`
		FROM deal_reviews
		WHERE deal_id=$1 AND status='pending'`, dealID).
		Scan(reviewDests(r)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "crm: get pending review for deal %d", dealID)
	}
	return r, nil
}

// ResolveReview applies a human adjudication: writes the chosen foreign keys
// onto the deal and flips the review to resolved, in one transaction. A
// partially applied resolution is a correctness bug, so any failure rolls
// the whole thing back.
func (s *PostgresStore) ResolveReview(ctx context.Context, reviewID, companyID, contactID int64, resolvedBy, notes string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "crm: begin resolve review")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var dealID int64
	err = tx.QueryRow(ctx,
		`SELECT deal_id FROM deal_reviews WHERE id=$1 AND status='pending' FOR UPDATE`,
		reviewID).Scan(&dealID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return eris.Errorf("crm: review %d is not pending", reviewID)
		}
		return eris.Wrapf(err, "crm: lock review %d", reviewID)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE deals SET company_id=$2, primary_contact_id=$3, updated_at=now()
		WHERE id=$1`, dealID, companyID, contactID); err != nil {
		return eris.Wrapf(err, "crm: resolve review %d: update deal %d", reviewID, dealID)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE deal_reviews
		SET status='resolved', resolved_by=$2, notes=$3, resolved_at=now()
		WHERE id=$1`, reviewID, resolvedBy, notes); err != nil {
		return eris.Wrapf(err, "crm: resolve review %d: update review", reviewID)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "crm: commit resolve review %d", reviewID)
	}
	return nil
}

// companyColumns is the standard column list for company queries.
const companyColumns = `id, name, COALESCE(domain, ''), COALESCE(owner_id, ''), created_at, updated_at`

func companyDests(c *Company) []any {
	return []any{&c.ID, &c.Name, &c.Domain, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt}
}

// contactColumns is the standard column list for contact queries.
const contactColumns = `id, first_name, COALESCE(last_name, ''), email, company_id, is_primary, COALESCE(owner_id, ''), created_at, updated_at`

func contactDests(c *Contact) []any {
	return []any{&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.CompanyID, &c.IsPrimary, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt}
}

func scanContacts(rows pgx.Rows) ([]Contact, error) {
	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(contactDests(&c)...); err != nil {
			return nil, eris.Wrap(err, "crm: scan contact")
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// dealColumns is the standard column list for deal queries.
const dealColumns = `id, COALESCE(company, ''), COALESCE(contact_name, ''), COALESCE(contact_email, ''),
	company_id, primary_contact_id, COALESCE(owner_id, ''), created_at, updated_at`

func dealDests(d *Deal) []any {
	return []any{&d.ID, &d.Company, &d.ContactName, &d.ContactEmail,
		&d.CompanyID, &d.PrimaryContactID, &d.OwnerID, &d.CreatedAt, &d.UpdatedAt}
}

// reviewColumns is the standard column list for review queries.
const reviewColumns = `id, deal_id, reason, COALESCE(company_text, ''), COALESCE(contact_name_text, ''),
	COALESCE(contact_email_text, ''), suggested_company_id, suggested_contact_id,
	status, COALESCE(resolved_by, ''), COALESCE(notes, ''), created_at, resolved_at`

func reviewDests(r *ReviewRecord) []any {
	return []any{&r.ID, &r.DealID, &r.Reason, &r.CompanyText, &r.ContactNameText,
		&r.ContactEmailText, &r.SuggestedCompanyID, &r.SuggestedContactID,
		&r.Status, &r.ResolvedBy, &r.Notes, &r.CreatedAt, &r.ResolvedAt}
}

func nilIfNonPositive(v int) any {
	if v <= 0 {
		return nil
	}
	return v
}

func nilIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

