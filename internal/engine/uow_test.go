package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entigraph/internal/engine"
	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/record"
	"github.com/roach88/entigraph/internal/record/memory"
	"github.com/roach88/entigraph/internal/testutil"
)

func TestIdentityAndReadYourOwnWrites(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)

	u := openUnitOfWork(t, repo)
	created, err := u.CreateEntity(ctx, "Company", "", named("Acme"))
	require.NoError(t, err)
	assert.Equal(t, "Company-1", created.ID())
	assert.Equal(t, engine.Created, created.Status())

	assert.Same(t, created, mustEntity(t, u, "Company", created.ID()))
	assert.Equal(t, ir.IRString("Acme"), mustGet(t, created, "name"))

	require.NoError(t, u.Commit(ctx))
	assert.Equal(t, engine.Loaded, created.Status())
	assert.Empty(t, u.Modified())

	other := openUnitOfWork(t, repo)
	loaded := mustEntity(t, other, "Company", created.ID())
	assert.NotSame(t, created, loaded)
	assert.Equal(t, engine.Loaded, loaded.Status())
	assert.Equal(t, ir.IRString("Acme"), mustGet(t, loaded, "name"))

	require.NoError(t, loaded.Set("name", ir.IRString("Acme Inc")))
	assert.Equal(t, engine.Modified, loaded.Status())
	again := mustEntity(t, other, "Company", created.ID())
	assert.Same(t, loaded, again)
	assert.Equal(t, ir.IRString("Acme Inc"), mustGet(t, again, "name"))
	assert.Equal(t, []*engine.Entity{loaded}, other.Modified())
}

func TestCreateEntityRejectsDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme")

	u := openUnitOfWork(t, repo)
	_, err := u.CreateEntity(ctx, "Company", "c1")
	require.Error(t, err)
	assert.True(t, engine.IsDuplicateID(err))

	_, err = u.CreateEntity(ctx, "Company", "c2")
	require.NoError(t, err)
	_, err = u.CreateEntity(ctx, "Company", "c2")
	assert.True(t, engine.IsDuplicateID(err))

	// A removed entity still holds its id until commit.
	require.NoError(t, u.RemoveEntity(mustEntity(t, u, "Company", "c1")))
	_, err = u.CreateEntity(ctx, "Company", "c1")
	assert.True(t, engine.IsDuplicateID(err))

	_, err = u.CreateEntity(ctx, "Nope", "")
	assert.True(t, engine.IsUsage(err))
}

func TestCreateEntityRejectsIDsOfOtherTypes(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			ctx := context.Background()
			repo := testRepoOn(t, backend.open(t), testutil.CompanySchema())
			seedCompanies(t, repo, "x1", "Acme")

			u := openUnitOfWork(t, repo)
			_, err := u.CreateEntity(ctx, "Employee", "x1", named("Ann"))
			require.Error(t, err)
			assert.True(t, engine.IsDuplicateID(err))
			assert.Contains(t, err.Error(), "another entity type")

			_, err = u.CreateEntity(ctx, "Employee", "x2", named("Bob"))
			require.NoError(t, err)
			_, err = u.CreateEntity(ctx, "Company", "x2", named("Beta"))
			assert.True(t, engine.IsDuplicateID(err))
			assert.Contains(t, err.Error(), "in use by Employee")

			child := nested(t, u)
			_, err = child.CreateEntity(ctx, "Company", "x2", named("Gamma"))
			assert.True(t, engine.IsDuplicateID(err))
			require.NoError(t, child.Close())

			require.NoError(t, u.Commit(ctx))
			check := openUnitOfWork(t, repo)
			assert.Equal(t, ir.IRString("Bob"), mustGet(t, mustEntity(t, check, "Employee", "x2"), "name"))
		})
	}
}

func TestCreateEntityInitializerFailure(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	u := openUnitOfWork(t, repo)
	boom := errors.New("boom")

	var seen *engine.Entity
	_, err := u.CreateEntity(ctx, "Company", "c1", named("Acme"), func(e *engine.Entity) error {
		seen = e
		return boom
	})
	require.Error(t, err)
	assert.True(t, engine.IsInitializerFailed(err))
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, engine.Evicted, seen.Status())
	assert.Empty(t, u.Modified())
	e, err := u.Entity(ctx, "Company", "c1")
	require.NoError(t, err)
	assert.Nil(t, e)

	// The id is free again.
	_, err = u.CreateEntity(ctx, "Company", "c1", named("Acme"))
	assert.NoError(t, err)
}

func TestCommitRoundTrip(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			ctx := context.Background()
			repo := testRepoOn(t, backend.open(t), testutil.CompanySchema())

			u := openUnitOfWork(t, repo)
			_, err := u.CreateEntity(ctx, "Company", "c1", named("Acme"), func(e *engine.Entity) error {
				if _, err := e.CreateNested("address", func(a *engine.Composite) error {
					return a.Set("street", ir.IRString("Main"))
				}); err != nil {
					return err
				}
				more, err := e.Elements("moreAddresses")
				if err != nil {
					return err
				}
				for i, street := range []string{"First", "Second"} {
					if _, err := more.Add(func(a *engine.Composite) error {
						if err := a.Set("street", ir.IRString(street)); err != nil {
							return err
						}
						return a.Set("nr", ir.IRInt(i+1))
					}); err != nil {
						return err
					}
				}
				docs, err := e.Collection("docs")
				if err != nil {
					return err
				}
				return docs.Add(ir.IRString("charter"))
			})
			require.NoError(t, err)
			require.NoError(t, u.Commit(ctx))

			other := openUnitOfWork(t, repo)
			c := mustEntity(t, other, "Company", "c1")
			assert.Equal(t, ir.IRString("Acme"), mustGet(t, c, "name"))

			addr, err := c.Nested("address")
			require.NoError(t, err)
			require.NotNil(t, addr)
			assert.Equal(t, ir.IRString("Main"), mustGet(t, addr, "street"))

			more, err := c.Elements("moreAddresses")
			require.NoError(t, err)
			all, err := more.All()
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, ir.IRString("Second"), mustGet(t, all[1], "street"))
			assert.Equal(t, ir.IRInt(2), mustGet(t, all[1], "nr"))

			docs, err := c.Collection("docs")
			require.NoError(t, err)
			values, err := docs.Values()
			require.NoError(t, err)
			assert.Equal(t, []ir.IRValue{ir.IRString("charter")}, values)

			// Remove and commit.
			require.NoError(t, other.RemoveEntity(c))
			assert.Equal(t, engine.Removed, c.Status())
			require.NoError(t, other.Commit(ctx))

			third := openUnitOfWork(t, repo)
			gone, err := third.Entity(ctx, "Company", "c1")
			require.NoError(t, err)
			assert.Nil(t, gone)
		})
	}
}

func TestRollbackEvictsEntities(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme")

	u := openUnitOfWork(t, repo)
	c := mustEntity(t, u, "Company", "c1")
	require.NoError(t, c.Set("name", ir.IRString("changed")))
	created, err := u.CreateEntity(ctx, "Company", "c2", named("Beta"))
	require.NoError(t, err)

	require.NoError(t, u.Rollback(ctx))
	assert.Equal(t, engine.Evicted, c.Status())
	assert.Equal(t, engine.Evicted, created.Status())
	assert.Empty(t, u.Modified())

	_, err = c.Get("name")
	assert.True(t, engine.IsEvicted(err))
	assert.True(t, engine.IsEvicted(c.Set("name", ir.IRString("again"))))

	fresh := mustEntity(t, u, "Company", "c1")
	assert.NotSame(t, c, fresh)
	assert.Equal(t, ir.IRString("Acme"), mustGet(t, fresh, "name"))

	gone, err := u.Entity(ctx, "Company", "c2")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCloseUnitOfWork(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme")

	u := openUnitOfWork(t, repo)
	c := mustEntity(t, u, "Company", "c1")
	child := nested(t, u)

	err := u.Close()
	require.Error(t, err)
	assert.True(t, engine.IsUsage(err))

	require.NoError(t, child.Close())
	require.NoError(t, child.Close())
	require.NoError(t, u.Close())
	require.NoError(t, u.Close())

	_, err = u.Entity(ctx, "Company", "c1")
	assert.True(t, engine.IsClosed(err))
	_, err = u.CreateEntity(ctx, "Company", "")
	assert.True(t, engine.IsClosed(err))
	assert.True(t, engine.IsClosed(u.Commit(ctx)))
	assert.True(t, engine.IsClosed(u.Rollback(ctx)))
	_, err = u.Query("Company").Execute(ctx)
	assert.True(t, engine.IsClosed(err))
	_, err = c.Get("name")
	assert.True(t, engine.IsClosed(err))
}

func TestEntityForState(t *testing.T) {
	ctx := context.Background()
	records := memory.New()
	repo := testRepoOn(t, records, testutil.CompanySchema())
	seedCompanies(t, repo, "c1", "Acme")

	doc, err := records.Get(ctx, "c1")
	require.NoError(t, err)

	u := openUnitOfWork(t, repo)
	e, err := u.EntityForState(ctx, "Company", doc)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, engine.Loaded, e.Status())
	assert.Equal(t, ir.IRString("Acme"), mustGet(t, e, "name"))

	again, err := u.EntityForState(ctx, "Company", doc.Clone())
	require.NoError(t, err)
	assert.Same(t, e, again)
	assert.Same(t, e, mustEntity(t, u, "Company", "c1"))

	child := nested(t, u)
	defer child.Close()
	ce, err := child.EntityForState(ctx, "Company", doc)
	require.NoError(t, err)
	require.NotNil(t, ce)
	assert.NotSame(t, e, ce)
	assert.Same(t, child, ce.UnitOfWork())

	_, err = u.EntityForState(ctx, "Employee", doc)
	assert.True(t, engine.IsBackendFailure(err))
	_, err = u.EntityForState(ctx, "Company", &record.Document{ID: "x"})
	assert.Error(t, err)
}

func TestRemovedEntityIsReadOnly(t *testing.T) {
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme")

	u := openUnitOfWork(t, repo)
	c := mustEntity(t, u, "Company", "c1")
	require.NoError(t, u.RemoveEntity(c))

	err := c.Set("name", ir.IRString("x"))
	assert.True(t, engine.IsUsage(err))
	assert.Equal(t, ir.IRString("Acme"), mustGet(t, c, "name"))

	other := openUnitOfWork(t, repo)
	assert.True(t, engine.IsUsage(other.RemoveEntity(c)))
}
