package typed_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/keel/pkg/adapters/fs"
	"github.com/aretw0/keel/pkg/core"
	"github.com/aretw0/keel/pkg/typed"
)

type Payment struct {
	ID     string  `json:"id"`
	Payer  string  `json:"payer"`
	Amount float64 `json:"amount"`
	Paid   bool    `json:"paid"`
}

func setupStore(t *testing.T) (*fs.Store, *fs.AuditLog) {
	t.Helper()
	cfg := fs.Config{Path: t.TempDir(), SystemDir: ".keel"}
	store := fs.NewStore(cfg)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	return store, fs.NewAuditLog(cfg)
}

func TestTypedRepository(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	payments := typed.NewRepository[Payment](store)

	// 1. Test Save
	p := &typed.Resource[Payment]{
		Key:  "payments/p-1",
		Data: Payment{ID: "p-1", Payer: "Alice", Amount: 99.5},
	}
	if err := payments.Save(ctx, p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if p.Saver == nil {
		t.Error("Expected saver to be attached after Save")
	}

	// 2. Test Get
	got, err := payments.Get(ctx, "payments/p-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Data.Payer != "Alice" {
		t.Errorf("Expected Payer 'Alice', got '%s'", got.Data.Payer)
	}
	if got.Data.Amount != 99.5 {
		t.Errorf("Expected Amount 99.5, got %v", got.Data.Amount)
	}

	// 3. Active Record save
	got.Data.Paid = true
	if err := got.Save(ctx); err != nil {
		t.Fatalf("Active record Save failed: %v", err)
	}
	again, _ := payments.Get(ctx, "payments/p-1")
	if !again.Data.Paid {
		t.Error("Expected Paid to be persisted")
	}

	// The raw value is a plain object
	raw, err := store.Read(ctx, "payments/p-1")
	if err != nil {
		t.Fatal(err)
	}
	if raw.(core.Object)["amount"] != core.Float(99.5) {
		t.Errorf("Unexpected raw amount %v", raw.(core.Object)["amount"])
	}
}

func TestTypedRepository_Errors(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	payments := typed.NewRepository[Payment](store)

	if _, err := payments.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	detached := &typed.Resource[Payment]{Key: "x"}
	if err := detached.Save(ctx); err == nil {
		t.Error("Expected error saving a detached resource")
	}

	// Wrong shape
	if err := store.Write(ctx, "bad", core.Object{"amount": core.String("lots")}); err != nil {
		t.Fatal(err)
	}
	if _, err := payments.Get(ctx, "bad"); err == nil {
		t.Error("Expected decode error")
	}
}
