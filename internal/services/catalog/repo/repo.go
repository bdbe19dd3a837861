// Package repo provides postgres access for partition catalog maintenance
package repo

import (
	"context"
	"fmt"
	"strings"

	perr "gridhot/internal/platform/errors"
	"gridhot/internal/platform/store"
	"gridhot/internal/repokit"
	"gridhot/internal/services/catalog/domain"
)

type (
	// PG is a Postgres binder for domain.CatalogRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.CatalogRepo
func NewPG() repokit.Binder[domain.CatalogRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.CatalogRepo { return &queries{q: q} }

// guardIdent rejects identifiers that did not come from Route or the catalog.
// Partition and view names are interpolated into DDL, so nothing else may
// pass through
func guardIdent(name string) error {
	if name == "" {
		return perr.InvalidArgf("empty identifier")
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return perr.InvalidArgf("unsafe identifier %q", name)
		}
	}
	return nil
}

// CreatePartition creates the partition table if absent (idempotent)
func (r *queries) CreatePartition(ctx context.Context, partition string) error {
	if err := guardIdent(partition); err != nil {
		return err
	}
	_, err := r.q.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			record_id   text PRIMARY KEY,
			group_key   text NOT NULL,
			subgroup    text NOT NULL DEFAULT '',
			geom        text NOT NULL,
			quality     text NOT NULL DEFAULT '',
			meta        jsonb NOT NULL DEFAULT '{}'::jsonb,
			ingested_at timestamptz NOT NULL DEFAULT now()
		)
	`, partition))
	return perr.FromPostgresf(err, "create partition %s", partition)
}

// DropPartition removes a partition table
func (r *queries) DropPartition(ctx context.Context, partition string) error {
	if err := guardIdent(partition); err != nil {
		return err
	}
	if !strings.HasPrefix(partition, domain.PartitionPrefix) {
		return perr.InvalidArgf("refusing to drop non-partition table %q", partition)
	}
	_, err := r.q.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, partition))
	return perr.FromPostgresf(err, "drop partition %s", partition)
}

// ListPartitions introspects pg_tables at call time
func (r *queries) ListPartitions(ctx context.Context) ([]string, error) {
	out, err := store.Strings(ctx, r.q, `
		SELECT tablename
		FROM pg_tables
		WHERE schemaname = current_schema()
		  AND tablename LIKE $1
		ORDER BY tablename
	`, domain.PartitionPrefix+"%")
	if err != nil {
		return nil, perr.FromPostgres(err, "list partitions")
	}
	return out, nil
}

// ViewSQL builds the unified view definition over the given partitions.
// It is deterministic for a given (viewName, partitions) pair, which is what
// makes EnsureUnifiedView idempotent
func ViewSQL(viewName string, partitions []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE OR REPLACE VIEW %s AS\n", viewName)
	for i, p := range partitions {
		if i > 0 {
			sb.WriteString("UNION ALL\n")
		}
		fmt.Fprintf(&sb,
			"SELECT record_id, group_key, subgroup, geom, quality, meta, ingested_at, '%s'::text AS %s FROM %s\n",
			p, domain.SourceColumn, p)
	}
	return sb.String()
}

// CreateUnifiedView (re)builds the union view
func (r *queries) CreateUnifiedView(ctx context.Context, viewName string, partitions []string) error {
	if err := guardIdent(viewName); err != nil {
		return err
	}
	for _, p := range partitions {
		if err := guardIdent(p); err != nil {
			return err
		}
	}
	if len(partitions) == 0 {
		return domain.ErrNoPartitions
	}
	_, err := r.q.Exec(ctx, ViewSQL(viewName, partitions))
	return perr.FromPostgresf(err, "create unified view %s", viewName)
}

// InsertRecords writes a batch of records into one partition with a
// multi-row upsert; returns rows affected
func (r *queries) InsertRecords(ctx context.Context, partition string, recs []domain.Record) (int, error) {
	if err := guardIdent(partition); err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `INSERT INTO %s
		(record_id, group_key, subgroup, geom, quality, meta) VALUES `, partition)

	args := make([]any, 0, len(recs)*6)
	for i, rec := range recs {
		if i > 0 {
			sb.WriteByte(',')
		}
		base := i*6 + 1
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d)",
			base, base+1, base+2, base+3, base+4, base+5)
		meta := rec.Meta
		if meta == nil {
			meta = map[string]string{}
		}
		args = append(args, rec.ID, rec.GroupKey, rec.Subgroup, rec.Geom, rec.Quality, meta)
	}
	sb.WriteString(` ON CONFLICT (record_id) DO UPDATE SET
		group_key = EXCLUDED.group_key,
		subgroup = EXCLUDED.subgroup,
		geom = EXCLUDED.geom,
		quality = EXCLUDED.quality,
		meta = EXCLUDED.meta,
		ingested_at = now()`)

	tag, err := r.q.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, perr.FromPostgresf(err, "insert %d records into %s", len(recs), partition)
	}
	return int(tag.RowsAffected()), nil
}
