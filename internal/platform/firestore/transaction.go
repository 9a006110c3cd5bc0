package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

// Transactions retry on contention up to txMaxAttempts and never run longer
// than txDeadline unless the caller context is already tighter.
const (
	txMaxAttempts = 5
	txDeadline    = 15 * time.Second
)

// TxFunc is executed within a Firestore transaction.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// RunTransaction executes fn within a transaction on the provided client,
// applying the package retry and deadline policy.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	txnCtx := ctx
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > txDeadline {
		txnCtx, cancel = context.WithTimeout(ctx, txDeadline)
		defer cancel()
	}

	err := client.RunTransaction(txnCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, tx)
	}, firestore.MaxAttempts(txMaxAttempts))

	return WrapError("transaction", err)
}
