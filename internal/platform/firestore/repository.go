package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
)

// Document pairs a decoded entity with the snapshot metadata Firestore
// reports for it.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
	ReadTime   time.Time
}

// Decoder hydrates the typed entity from a snapshot.
type Decoder[T any] func(ctx context.Context, snap *firestore.DocumentSnapshot) (T, error)

// CollectionReader serves the read paths of a single collection. Writes in
// this service go through transactions, so the reader only covers point and
// batch lookups.
type CollectionReader[T any] struct {
	provider   *Provider
	collection string
	decode     Decoder[T]
}

// NewCollectionReader binds a typed reader to a collection. A nil decoder
// falls back to Firestore struct decoding.
func NewCollectionReader[T any](provider *Provider, collection string, decode Decoder[T]) *CollectionReader[T] {
	if decode == nil {
		decode = StructDecoder[T]()
	}
	return &CollectionReader[T]{
		provider:   provider,
		collection: strings.TrimSpace(collection),
		decode:     decode,
	}
}

// Get fetches one document by id. Missing documents surface as a not-found
// repository error via WrapError.
func (r *CollectionReader[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := r.documentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}

	return r.decodeSnapshot(ctx, snap)
}

// GetAll batch-fetches the given ids in one round trip. Blank and duplicate
// ids are skipped, and ids without a backing document are absent from the
// result rather than an error.
func (r *CollectionReader[T]) GetAll(ctx context.Context, ids []string) ([]Document[T], error) {
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]*firestore.DocumentRef, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		refs = append(refs, coll.Doc(trimmed))
	}
	if len(refs) == 0 {
		return nil, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, WrapError(r.op("getall"), err)
	}

	docs := make([]Document[T], 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		decoded, err := r.decodeSnapshot(ctx, snap)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snap.Ref.ID, err)
		}
		docs = append(docs, decoded)
	}
	return docs, nil
}

func (r *CollectionReader[T]) decodeSnapshot(ctx context.Context, snap *firestore.DocumentSnapshot) (Document[T], error) {
	entity, err := r.decode(ctx, snap)
	if err != nil {
		return Document[T]{}, err
	}
	return Document[T]{
		ID:         snap.Ref.ID,
		Data:       entity,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
		ReadTime:   snap.ReadTime,
	}, nil
}

func (r *CollectionReader[T]) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, WrapError(r.op("collection"), errors.New("firestore: provider is nil"))
	}
	if r.collection == "" {
		return nil, WrapError(r.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

func (r *CollectionReader[T]) documentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (r *CollectionReader[T]) op(action string) string {
	name := "firestore"
	if r != nil && strings.TrimSpace(r.collection) != "" {
		name = strings.TrimSpace(r.collection)
	}
	return name + "." + action
}

// StructDecoder decodes snapshots through Firestore's native struct mapping.
func StructDecoder[T any]() Decoder[T] {
	return func(_ context.Context, snap *firestore.DocumentSnapshot) (T, error) {
		var target T
		if err := snap.DataTo(&target); err != nil {
			return target, err
		}
		return target, nil
	}
}
