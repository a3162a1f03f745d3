package engine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/entigraph/internal/engine"
	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/record"
	"github.com/roach88/entigraph/internal/record/memory"
	"github.com/roach88/entigraph/internal/record/sqlite"
	"github.com/roach88/entigraph/internal/recordstore"
	"github.com/roach88/entigraph/internal/schema"
	"github.com/roach88/entigraph/internal/testutil"
)

// backends lists the record stores every scenario test runs against.
var backends = []struct {
	name string
	open func(t *testing.T) record.Store
}{
	{
		name: "memory",
		open: func(t *testing.T) record.Store { return memory.New() },
	},
	{
		name: "sqlite",
		open: func(t *testing.T) record.Store {
			s, err := sqlite.Open(filepath.Join(t.TempDir(), "entigraph.db"))
			require.NoError(t, err)
			return s
		},
	},
}

// testRepo opens a repository over an in-memory store with deterministic
// ids and no commit lock.
func testRepo(t *testing.T, opts ...engine.Option) *engine.Repository {
	t.Helper()
	return testRepoOn(t, memory.New(), testutil.CompanySchema(), opts...)
}

func testRepoOn(t *testing.T, records record.Store, reg *schema.Registry, opts ...engine.Option) *engine.Repository {
	t.Helper()
	base := []engine.Option{
		engine.WithCommitLock(engine.IgnoreLock()),
		engine.WithIDGenerator(testutil.NewSequenceIDGenerator()),
	}
	repo, err := engine.Open(recordstore.New(records, reg), reg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func openUnitOfWork(t *testing.T, repo *engine.Repository) *engine.UnitOfWork {
	t.Helper()
	u, err := repo.NewUnitOfWork(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { u.Close() })
	return u
}

func nested(t *testing.T, parent *engine.UnitOfWork) *engine.UnitOfWork {
	t.Helper()
	u, err := parent.NewUnitOfWork()
	require.NoError(t, err)
	return u
}

func named(name string) engine.Initializer {
	return func(e *engine.Entity) error {
		return e.Set("name", ir.IRString(name))
	}
}

// seedCompanies commits companies with the given ids, named after the
// values in names.
func seedCompanies(t *testing.T, repo *engine.Repository, idsAndNames ...string) {
	t.Helper()
	ctx := context.Background()
	u := openUnitOfWork(t, repo)
	for i := 0; i+1 < len(idsAndNames); i += 2 {
		_, err := u.CreateEntity(ctx, "Company", idsAndNames[i], named(idsAndNames[i+1]))
		require.NoError(t, err)
	}
	require.NoError(t, u.Commit(ctx))
	require.NoError(t, u.Close())
}

func mustEntity(t *testing.T, u *engine.UnitOfWork, typeName, id string) *engine.Entity {
	t.Helper()
	e, err := u.Entity(context.Background(), typeName, id)
	require.NoError(t, err)
	require.NotNil(t, e, "%s(%s) not found", typeName, id)
	return e
}

func mustGet(t *testing.T, c interface {
	Get(string) (ir.IRValue, error)
}, name string) ir.IRValue {
	t.Helper()
	v, err := c.Get(name)
	require.NoError(t, err)
	return v
}

func ids(t *testing.T, rs *engine.ResultSet) []string {
	t.Helper()
	entities, err := rs.Entities()
	require.NoError(t, err)
	out := []string{}
	for _, e := range entities {
		out = append(out, e.ID())
	}
	return out
}
