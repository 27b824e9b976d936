package tenant

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Status reflects whether a tenant may receive traffic.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusDisabled  Status = "DISABLED"
)

var (
	// ErrNotFound indicates no registry record matches the tax id (or the record is disabled).
	ErrNotFound = errors.New("tenant: not found")
	// ErrRegistryUnavailable indicates the master store could not be reached. Retryable.
	ErrRegistryUnavailable = errors.New("tenant: registry unavailable")
	// ErrInvalidTaxID indicates the organization identifier does not normalize to a CNPJ.
	ErrInvalidTaxID = errors.New("tenant: invalid tax id")
)

// Secret wraps a credential so it never leaks through fmt or structured logs.
type Secret string

func (Secret) String() string { return "[redacted]" }

// Reveal returns the wrapped value; call sites are limited to connection setup.
func (s Secret) Reveal() string { return string(s) }

// Record is one customer organization as stored in the master registry.
type Record struct {
	ID          uuid.UUID
	TaxID       string // normalized, digits only
	DisplayName string
	DBHost      string
	DBPort      int
	DBName      string
	DBUser      string
	DBPassword  Secret
	SchemaName  string
	Status      Status
}

// Signature identifies the physical pool a tenant's traffic must use.
// Two tenants with identical signatures share a pool; a differing schema
// always yields a distinct pool even on the same host/port/database.
type Signature struct {
	Host     string
	Port     int
	Database string
	User     string
	Schema   string
}

// Key returns the canonical cache key for the signature.
func (s Signature) Key() string {
	return fmt.Sprintf("%s:%d/%s/%s/%s", s.Host, s.Port, s.Database, s.User, s.Schema)
}

// Signature derives the pool signature for the record.
func (r Record) Signature() Signature {
	return Signature{
		Host:     r.DBHost,
		Port:     r.DBPort,
		Database: r.DBName,
		User:     r.DBUser,
		Schema:   r.SchemaName,
	}
}

// User is the identity resolved inside a tenant's own users table.
type User struct {
	ID        uuid.UUID
	Name      string
	IsAdmin   bool
	IsManager bool
}

const cnpjLength = 14

// NormalizeTaxID strips punctuation from a free-form CNPJ and validates its shape.
// "05.122.231/0001-91" and "05122231000191" normalize to the same value.
func NormalizeTaxID(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '/' || r == ' ':
			// punctuation commonly typed into the login form
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidTaxID, r)
		}
	}
	digits := b.String()
	if len(digits) != cnpjLength {
		return "", fmt.Errorf("%w: expected %d digits, got %d", ErrInvalidTaxID, cnpjLength, len(digits))
	}
	return digits, nil
}
