package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpCapturesPgxDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_stock_items_code", TableName: "stock_items", Message: "duplicate key value"}
	err := Wrap(CodeConflict, fmt.Errorf("insert: %w", pgErr), "restock")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", d.Code)
	}
	if d.PG == nil || d.PG.Code != "23505" || d.PG.Constraint != "ux_stock_items_code" || d.PG.Table != "stock_items" {
		t.Fatalf("pg diagnostics not captured: %+v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d", len(d.Chain))
	}
}

func TestDumpCapturesPqDiagnostics(t *testing.T) {
	err := fmt.Errorf("delete: %w", &pq.Error{Code: "23503", Constraint: "fk_assignments_item", Table: "stock_assignments"})
	d := Dump(err)
	if d.PG == nil || d.PG.Code != "23503" || d.PG.Constraint != "fk_assignments_item" {
		t.Fatalf("pq diagnostics not captured: %+v", d)
	}
	if d.Code != "" {
		t.Fatalf("untyped error should not carry a code, got %s", d.Code)
	}
}

func TestDumpFieldsOmitPGForPlainErrors(t *testing.T) {
	fields := Dump(New(CodeValidation, "quantity must be positive")).Fields()
	if _, ok := fields["pg_code"]; ok {
		t.Fatalf("plain errors must not carry pg fields: %v", fields)
	}
	if fields["error_code"] != CodeValidation {
		t.Fatalf("unexpected error code %v", fields["error_code"])
	}

	fields = Dump(&pgconn.PgError{Code: "40001"}).Fields()
	if fields["pg_code"] != "40001" {
		t.Fatalf("expected pg_code, got %v", fields)
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.TopMessage != "" || len(d.Chain) != 0 {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}
