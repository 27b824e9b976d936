package registry

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendapro/vendapro-saas/platform/go/tenant"
)

// TenantsTable is the fully-qualified master registry table.
const TenantsTable = "master.tenants"

const recordColumns = `tenant_id, tax_id, display_name, db_host, db_port, db_name,
        db_user, db_password, schema_name, status`

// Postgres reads tenant records from the master database.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a registry; assumes migrations already created the table.
func NewPostgres(pool *pgxpool.Pool) (*Postgres, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &Postgres{pool: pool}, nil
}

// FindByTaxID returns the record for the normalized tax id. DISABLED records
// are reported as not found so a decommissioned tenant cannot log in.
func (r *Postgres) FindByTaxID(ctx context.Context, taxID string) (tenant.Record, error) {
	normalized, err := tenant.NormalizeTaxID(taxID)
	if err != nil {
		return tenant.Record{}, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tax_id = $1 AND status <> $2`,
		recordColumns, TenantsTable)

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, normalized, string(tenant.StatusDisabled)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tenant.Record{}, tenant.ErrNotFound
		}
		return tenant.Record{}, fmt.Errorf("%w: %w", tenant.ErrRegistryUnavailable, err)
	}
	return rec, nil
}

// ListActive yields ACTIVE tenants. The query runs when the sequence is
// ranged over, so each iteration sees current registry state.
func (r *Postgres) ListActive(ctx context.Context) iter.Seq2[tenant.Record, error] {
	return func(yield func(tenant.Record, error) bool) {
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE status = $1 ORDER BY tax_id`,
			recordColumns, TenantsTable)

		rows, err := r.pool.Query(ctx, query, string(tenant.StatusActive))
		if err != nil {
			yield(tenant.Record{}, fmt.Errorf("%w: %w", tenant.ErrRegistryUnavailable, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				yield(tenant.Record{}, fmt.Errorf("%w: %w", tenant.ErrRegistryUnavailable, err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(tenant.Record{}, fmt.Errorf("%w: %w", tenant.ErrRegistryUnavailable, err))
		}
	}
}

func scanRecord(row pgx.Row) (tenant.Record, error) {
	var rec tenant.Record
	var password string
	var status string
	if err := row.Scan(&rec.ID, &rec.TaxID, &rec.DisplayName, &rec.DBHost, &rec.DBPort,
		&rec.DBName, &rec.DBUser, &password, &rec.SchemaName, &status); err != nil {
		return tenant.Record{}, err
	}
	rec.DBPassword = tenant.Secret(password)
	rec.Status = tenant.Status(status)
	return rec, nil
}
