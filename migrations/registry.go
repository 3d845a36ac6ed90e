// Package migrations registers the embedded schema for each supported dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	socialsync "github.com/goliatone/go-social-sync"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	SourceLabel = "go-social-sync"

	postgresDir = "data/sql/migrations"
	sqliteDir   = "data/sql/migrations/sqlite"
)

// requiredObjects must be created by every dialect. The stores depend on the
// partial unique index for the single active credential set, the expiry index
// for state purges and the bucket key index for rate limit upserts.
var requiredObjects = []string{
	"social_credential_sets_one_active_idx",
	"social_oauth_states_expires_idx",
	"social_rate_limit_state_key_idx",
}

// Source is the migration directory of one dialect. Versions are the file
// names without the .up.sql suffix, in lexical order.
type Source struct {
	Dialect  string
	Dir      string
	FS       fs.FS
	Versions []string
}

type RegisterFunc func(ctx context.Context, dialect string, label string, fsys fs.FS) error

type config struct {
	root     fs.FS
	dialects []string
}

type Option func(*config)

// WithDialects limits registration to the given dialects.
func WithDialects(dialects ...string) Option {
	return func(c *config) {
		selected := make([]string, 0, len(dialects))
		for _, dialect := range dialects {
			dialect = strings.ToLower(strings.TrimSpace(dialect))
			if dialect != "" && !slices.Contains(selected, dialect) {
				selected = append(selected, dialect)
			}
		}
		if len(selected) > 0 {
			c.dialects = selected
		}
	}
}

// WithRoot replaces the embedded filesystem.
func WithRoot(root fs.FS) Option {
	return func(c *config) {
		if root != nil {
			c.root = root
		}
	}
}

// Load resolves both dialect directories and checks that they ship the same
// versions, each with a down file, and create the required objects.
func Load(root fs.FS) ([]Source, error) {
	postgres, err := loadSource(root, DialectPostgres, postgresDir)
	if err != nil {
		return nil, err
	}
	sqlite, err := loadSource(root, DialectSQLite, sqliteDir)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(postgres.Versions, sqlite.Versions) {
		return nil, fmt.Errorf("migrations: dialects disagree: postgres %v, sqlite %v", postgres.Versions, sqlite.Versions)
	}
	return []Source{postgres, sqlite}, nil
}

func loadSource(root fs.FS, dialect string, dir string) (Source, error) {
	sub, err := fs.Sub(root, dir)
	if err != nil {
		return Source{}, fmt.Errorf("migrations: resolve %s directory %q: %w", dialect, dir, err)
	}
	ups, err := fs.Glob(sub, "*.up.sql")
	if err != nil {
		return Source{}, fmt.Errorf("migrations: glob %s: %w", dialect, err)
	}
	if len(ups) == 0 {
		return Source{}, fmt.Errorf("migrations: %s directory %q has no *.up.sql files", dialect, dir)
	}

	source := Source{Dialect: dialect, Dir: dir, FS: sub}
	var schema strings.Builder
	for _, up := range ups {
		version := strings.TrimSuffix(up, ".up.sql")
		if _, err := fs.Stat(sub, version+".down.sql"); err != nil {
			return Source{}, fmt.Errorf("migrations: %s version %s has no down file", dialect, version)
		}
		content, err := fs.ReadFile(sub, up)
		if err != nil {
			return Source{}, fmt.Errorf("migrations: read %s/%s: %w", dir, up, err)
		}
		schema.Write(content)
		source.Versions = append(source.Versions, version)
	}
	for _, object := range requiredObjects {
		if !strings.Contains(schema.String(), object) {
			return Source{}, fmt.Errorf("migrations: %s schema does not create %s", dialect, object)
		}
	}
	return source, nil
}

// Register loads the embedded schema and hands each selected dialect to
// registerFn. Both dialects are selected by default.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) ([]Source, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	cfg := config{
		root:     socialsync.GetMigrationsFS(),
		dialects: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	sources, err := Load(cfg.root)
	if err != nil {
		return nil, err
	}
	registered := make([]Source, 0, len(cfg.dialects))
	for _, source := range sources {
		if !slices.Contains(cfg.dialects, source.Dialect) {
			continue
		}
		if err := registerFn(ctx, source.Dialect, SourceLabel, source.FS); err != nil {
			return registered, fmt.Errorf("migrations: register %s: %w", source.Dialect, err)
		}
		registered = append(registered, source)
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("migrations: no schema for dialects %v", cfg.dialects)
	}
	return registered, nil
}
