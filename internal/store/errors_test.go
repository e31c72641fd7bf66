package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Kind(-1)},
		{"no rows", pgx.ErrNoRows, KindNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), KindNotFound},
		{"context canceled", context.Canceled, KindTransient},
		{"unique violation", &pgconn.PgError{Code: "23505"}, KindConflict},
		{"connection failure", &pgconn.PgError{Code: "08006"}, KindTransient},
		{"insufficient resources", &pgconn.PgError{Code: "53300"}, KindTransient},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, KindPermanent},
		{"plain network error", errors.New("connection reset by peer"), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", tt.err)
			if tt.err == nil {
				if got != nil {
					t.Fatalf("classify(nil) = %v, want nil", got)
				}
				return
			}
			var se *Error
			if !errors.As(got, &se) {
				t.Fatalf("classify returned %T, want *Error", got)
			}
			if se.Kind != tt.want {
				t.Errorf("kind = %v, want %v", se.Kind, tt.want)
			}
			if !errors.Is(got, tt.err) && se.Err == nil {
				t.Error("classified error lost its cause")
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	err := &Error{Kind: KindConflict, Op: "x"}
	if KindOf(fmt.Errorf("wrap: %w", err)) != KindConflict {
		t.Error("KindOf did not unwrap to the typed error")
	}
	if KindOf(errors.New("anything else")) != KindTransient {
		t.Error("KindOf default should be transient")
	}
}

func TestErrorString(t *testing.T) {
	e := &Error{Kind: KindNotFound, Op: "complete call", Err: errors.New("no row")}
	want := "store: complete call: not_found: no row"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}
