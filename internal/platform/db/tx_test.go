package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct{ pgx.Tx }

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil transaction, got %v", tx)
	}
}

func TestTransactor_NestedCallJoinsOuter(t *testing.T) {
	// A context that already carries a transaction marker must not open a
	// second one; InTx should just run the function.
	tr := NewTransactor(nil)
	ctx := context.WithValue(context.Background(), txKey, fakeTx{})

	ran := false
	err := tr.InTx(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("inner function did not run")
	}
}
