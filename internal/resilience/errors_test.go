package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil should not be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	err := eris.Wrap(NewTransientError(errors.New("busy")), "store: get alias")
	if !IsTransient(err) {
		t.Error("wrapped TransientError should be transient")
	}
}

func TestIsTransient_PgSQLState(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"40001", true},
		{"40P01", true},
		{"08006", true},
		{"53300", true},
		{"57P01", true},
		{"23505", false}, // unique_violation
		{"P0001", false}, // raise_exception from the immutability trigger
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("query: %w", &pgconn.PgError{Code: tt.code})
			if got := IsTransient(err); got != tt.want {
				t.Errorf("IsTransient(%s) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestIsTransient_SQLiteBusy(t *testing.T) {
	if !IsTransient(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Error("sqlite busy should be transient")
	}
}

func TestIsTransient_Network(t *testing.T) {
	if !IsTransient(fmt.Errorf("dial: %w", syscall.ECONNREFUSED)) {
		t.Error("ECONNREFUSED should be transient")
	}
	var timeout net.Error = &net.DNSError{IsTimeout: true}
	if !IsTransient(timeout) {
		t.Error("timeout should be transient")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	if IsTransient(errors.New("store: game record is immutable")) {
		t.Error("immutability violation must not be retried")
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	te := NewTransientError(inner)
	if !errors.Is(te, inner) {
		t.Error("expected Unwrap to expose inner error")
	}
	if te.Error() != "inner" {
		t.Errorf("unexpected message %q", te.Error())
	}
}
