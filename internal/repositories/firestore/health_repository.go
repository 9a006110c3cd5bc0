package firestore

import (
	"context"
	"errors"

	"google.golang.org/api/iterator"

	pfirestore "github.com/xsnapster/api/internal/platform/firestore"
	"github.com/xsnapster/api/internal/repositories"
)

// NewHealthRepository builds a dependency health repository probing Firestore
// with a minimal read on the products collection. Extra checks, such as the
// redis multiplier cache ping, run alongside it.
func NewHealthRepository(provider *pfirestore.Provider, extra ...repositories.DependencyCheck) (repositories.HealthRepository, error) {
	if provider == nil {
		return nil, errors.New("health repository requires firestore provider")
	}
	checks := append([]repositories.DependencyCheck{
		{Name: "firestore", Check: pingCheck(provider)},
	}, extra...)
	return repositories.NewDependencyHealthRepository(checks)
}

func pingCheck(provider *pfirestore.Provider) func(context.Context) error {
	return func(ctx context.Context) error {
		client, err := provider.Client(ctx)
		if err != nil {
			return err
		}
		iter := client.Collection(productsCollection).Limit(1).Documents(ctx)
		defer iter.Stop()
		if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return pfirestore.WrapError("health.ping", err)
		}
		return nil
	}
}
