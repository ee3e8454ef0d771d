package identity

import (
	"fmt"

	"github.com/TobiSchelling/leadflow/internal/database"
)

// LeadSourceStore is the storage the attacher needs.
type LeadSourceStore interface {
	ListLeadSources() ([]database.LeadSource, error)
	InsertLeadSource(ls *database.LeadSource) error
	UpdateLeadSourceDates(ls *database.LeadSource) error
}

// AttachResult reports the provenance record a call resolved to.
type AttachResult struct {
	LeadSourceID string
	IsNew        bool
}

type sourceKey struct {
	customerID, sourceType, sourceDetail string
}

// Attacher records (customer, source type, source detail) provenance
// idempotently, indexed by that triple.
type Attacher struct {
	store LeadSourceStore
	byKey map[sourceKey]*database.LeadSource
}

// NewAttacher loads the provenance index from store.
func NewAttacher(store LeadSourceStore) (*Attacher, error) {
	sources, err := store.ListLeadSources()
	if err != nil {
		return nil, fmt.Errorf("loading lead sources: %w", err)
	}
	a := &Attacher{store: store, byKey: make(map[sourceKey]*database.LeadSource, len(sources))}
	for i := range sources {
		ls := &sources[i]
		k := sourceKey{ls.CustomerID, ls.SourceType, ls.SourceDetail}
		if _, ok := a.byKey[k]; !ok {
			a.byKey[k] = ls
		}
	}
	return a, nil
}

// Attach inserts a provenance record for the triple, or refreshes the dates
// of the existing one while keeping its ID and created_at.
func (a *Attacher) Attach(customerID, sourceType, sourceDetail, listAddedDate, eventDate string) (AttachResult, error) {
	k := sourceKey{customerID, sourceType, sourceDetail}
	if existing, ok := a.byKey[k]; ok {
		updated := *existing
		updated.ListAddedDate = listAddedDate
		updated.EventDate = eventDate
		if err := a.store.UpdateLeadSourceDates(&updated); err != nil {
			return AttachResult{}, err
		}
		*existing = updated
		return AttachResult{LeadSourceID: existing.ID}, nil
	}

	ls := &database.LeadSource{
		CustomerID:    customerID,
		SourceType:    sourceType,
		SourceDetail:  sourceDetail,
		ListAddedDate: listAddedDate,
		EventDate:     eventDate,
	}
	if err := a.store.InsertLeadSource(ls); err != nil {
		return AttachResult{}, err
	}
	a.byKey[k] = ls
	return AttachResult{LeadSourceID: ls.ID, IsNew: true}, nil
}
