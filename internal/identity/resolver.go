// Package identity merges inbound lead records into canonical customers and
// records which feeds produced them.
package identity

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/leadflow/internal/database"
)

// StatusUncontacted is the status given to newly created customers.
const StatusUncontacted = "Uncontacted"

// CustomerStore is the storage the resolver needs.
type CustomerStore interface {
	ListCustomers() ([]database.Customer, error)
	InsertCustomer(c *database.Customer) error
	UpdateCustomerContact(c *database.Customer) error
}

// Candidate is one inbound lead payload. At least one of Handle and Phone
// must be set.
type Candidate struct {
	Handle   string
	FullName string
	Phone    string
	Email    string
}

// MergeResult reports which customer a candidate resolved to.
type MergeResult struct {
	CustomerID string
	IsNew      bool
}

// Resolver merges candidates into customers using in-memory indexes keyed by
// normalized phone and by handle. The indexes are loaded once when the
// resolver is created and kept current as it writes.
type Resolver struct {
	store    CustomerStore
	byID     map[string]*database.Customer
	byPhone  map[string]*database.Customer
	byHandle map[string]*database.Customer
}

// NewResolver loads the customer indexes from store.
func NewResolver(store CustomerStore) (*Resolver, error) {
	customers, err := store.ListCustomers()
	if err != nil {
		return nil, fmt.Errorf("loading customers: %w", err)
	}

	r := &Resolver{
		store:    store,
		byID:     make(map[string]*database.Customer, len(customers)),
		byPhone:  make(map[string]*database.Customer, len(customers)),
		byHandle: make(map[string]*database.Customer, len(customers)),
	}
	for i := range customers {
		r.index(&customers[i])
	}
	return r, nil
}

// Merge resolves a candidate to an existing customer (phone first, then
// handle) and fills its contact fields, or creates a new Uncontacted
// customer. It performs exactly one write.
func (r *Resolver) Merge(c Candidate) (MergeResult, error) {
	c.Handle = strings.TrimSpace(c.Handle)
	c.FullName = strings.TrimSpace(c.FullName)
	c.Email = strings.TrimSpace(c.Email)
	phone := NormalizePhone(c.Phone)

	if c.Handle == "" && phone == "" {
		return MergeResult{}, fmt.Errorf("candidate has neither handle nor phone")
	}

	existing := r.lookup(phone, c.Handle)
	if existing == nil {
		cust := &database.Customer{
			LineName:    c.Handle,
			FullName:    c.FullName,
			PhoneNumber: phone,
			Email:       c.Email,
			Status:      StatusUncontacted,
		}
		if err := r.store.InsertCustomer(cust); err != nil {
			return MergeResult{}, err
		}
		r.index(cust)
		return MergeResult{CustomerID: cust.ID, IsNew: true}, nil
	}

	updated := *existing
	// Identity keys are only filled when missing, never replaced.
	if updated.PhoneNumber == "" {
		updated.PhoneNumber = phone
	}
	if updated.LineName == "" {
		updated.LineName = c.Handle
	}
	updated.FullName = preferNonEmpty(c.FullName, updated.FullName)
	updated.Email = preferNonEmpty(c.Email, updated.Email)

	if err := r.store.UpdateCustomerContact(&updated); err != nil {
		return MergeResult{}, err
	}
	*existing = updated
	r.index(existing)
	return MergeResult{CustomerID: existing.ID, IsNew: false}, nil
}

// Customer returns the indexed customer with the given ID.
func (r *Resolver) Customer(id string) (database.Customer, bool) {
	c, ok := r.byID[id]
	if !ok {
		return database.Customer{}, false
	}
	return *c, true
}

func (r *Resolver) lookup(phone, handle string) *database.Customer {
	if phone != "" {
		if c, ok := r.byPhone[phone]; ok {
			return c
		}
	}
	if handle != "" {
		if c, ok := r.byHandle[handle]; ok {
			return c
		}
	}
	return nil
}

// index registers c under its keys. The first customer indexed under a key
// keeps it, matching a first-match scan in listing order.
func (r *Resolver) index(c *database.Customer) {
	r.byID[c.ID] = c
	if p := NormalizePhone(c.PhoneNumber); p != "" {
		if _, taken := r.byPhone[p]; !taken {
			r.byPhone[p] = c
		}
	}
	if c.LineName != "" {
		if _, taken := r.byHandle[c.LineName]; !taken {
			r.byHandle[c.LineName] = c
		}
	}
}

var phoneStripper = strings.NewReplacer(
	"-", "", " ", "", "(", "", ")", "",
	"‐", "", "−", "", "　", "", "（", "", "）", "",
)

// NormalizePhone strips hyphens, spaces and parentheses from a phone number.
func NormalizePhone(phone string) string {
	return phoneStripper.Replace(strings.TrimSpace(phone))
}

func preferNonEmpty(candidate, current string) string {
	if candidate != "" {
		return candidate
	}
	return current
}
