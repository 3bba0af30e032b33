package schema

import (
	"context"

	"pg-graphql/internal/dbexec"
)

type txContextKey struct{}

// WithTx attaches the request transaction every resolver of one operation runs on.
func WithTx(ctx context.Context, tx dbexec.TxExecutor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext returns the request transaction, or nil.
func TxFromContext(ctx context.Context) dbexec.TxExecutor {
	if ctx == nil {
		return nil
	}
	tx, _ := ctx.Value(txContextKey{}).(dbexec.TxExecutor)
	return tx
}
