package db

import (
	"context"
	"testing"
)

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx for empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil tx for wrong value type")
	}
}

func TestConn_FallsBackToPool(t *testing.T) {
	// A nil pool is still returned as the Queryable when no tx is active.
	q := Conn(context.Background(), nil)
	if q == nil {
		t.Fatal("expected non-nil queryable")
	}
}
