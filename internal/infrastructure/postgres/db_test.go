package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/blackbelt-platform/core/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

type errScanner struct{ err error }

func (s errScanner) Scan(...any) error { return s.err }

func TestErrorClassifiers(t *testing.T) {
	malformed := fmt.Errorf("query: %w", &pgconn.PgError{Code: invalidTextRepresentation})
	dup := &pgconn.PgError{Code: uniqueViolation}

	if !isInvalidText(malformed) {
		t.Error("isInvalidText(22P02) = false, want true")
	}
	if isInvalidText(dup) || isInvalidText(errors.New("boom")) {
		t.Error("isInvalidText matched a non-22P02 error")
	}
	if !isUniqueViolation(dup) || isUniqueViolation(malformed) {
		t.Error("isUniqueViolation misclassified")
	}
}

func TestScan_MalformedIDIsNotFound(t *testing.T) {
	malformed := &pgconn.PgError{Code: invalidTextRepresentation}

	if _, err := scanInvitation(errScanner{malformed}); !errors.Is(err, domain.ErrInvitationNotFound) {
		t.Errorf("scanInvitation err = %v, want ErrInvitationNotFound", err)
	}
	if _, err := scanUser(errScanner{malformed}); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("scanUser err = %v, want ErrUserNotFound", err)
	}

	other := errors.New("conn reset")
	if _, err := scanInvitation(errScanner{other}); !errors.Is(err, other) || errors.Is(err, domain.ErrInvitationNotFound) {
		t.Errorf("scanInvitation err = %v, want wrapped conn error", err)
	}
}
