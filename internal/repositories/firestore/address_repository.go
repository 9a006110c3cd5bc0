package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/xsnapster/api/internal/domain"
	pfirestore "github.com/xsnapster/api/internal/platform/firestore"
	"github.com/xsnapster/api/internal/repositories"
)

const addressesCollection = "addresses"

// AddressRepository reads saved delivery addresses from Firestore.
type AddressRepository struct {
	addresses *pfirestore.CollectionReader[addressDocument]
}

// NewAddressRepository constructs a Firestore-backed address reader.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{
		addresses: pfirestore.NewCollectionReader[addressDocument](provider, addressesCollection, nil),
	}, nil
}

// Get loads an address by id scoped to its owner. An address that exists but
// belongs to another user is reported as not found so callers cannot probe
// for other users' addresses.
func (r *AddressRepository) Get(ctx context.Context, addressID string, userID string) (domain.Address, error) {
	if r == nil || r.addresses == nil {
		return domain.Address{}, errors.New("address repository not initialised")
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Address{}, errors.New("address repository: user id is required")
	}

	doc, err := r.addresses.Get(ctx, id)
	if err != nil {
		return domain.Address{}, err
	}
	if doc.Data.UserRef != uid {
		return domain.Address{}, pfirestore.NewNotFoundError("addresses.get", fmt.Sprintf("address %s not found", id))
	}
	return doc.Data.toDomain(doc.ID), nil
}

type addressDocument struct {
	UserRef    string    `firestore:"userRef"`
	Name       string    `firestore:"name"`
	Phone      string    `firestore:"phone"`
	Line1      string    `firestore:"line1"`
	Line2      *string   `firestore:"line2,omitempty"`
	City       string    `firestore:"city"`
	State      string    `firestore:"state"`
	PostalCode string    `firestore:"postalCode"`
	Type       string    `firestore:"type,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d addressDocument) toDomain(id string) domain.Address {
	return domain.Address{
		ID:         id,
		UserID:     d.UserRef,
		Name:       d.Name,
		Phone:      d.Phone,
		Line1:      d.Line1,
		Line2:      cloneOptionalString(d.Line2),
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Type:       d.Type,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func cloneOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	cloned := *value
	if strings.TrimSpace(cloned) == "" {
		return nil
	}
	return &cloned
}

// Ensure interface compliance.
var _ repositories.AddressRepository = (*AddressRepository)(nil)
