package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entigraph/internal/engine"
	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/query"
)

func TestNestedIsolation(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme")

	root := openUnitOfWork(t, repo)
	parent := mustEntity(t, root, "Company", "c1")

	child := nested(t, root)
	clone := mustEntity(t, child, "Company", "c1")
	assert.NotSame(t, parent, clone)
	assert.Same(t, child, clone.UnitOfWork())

	require.NoError(t, clone.Set("name", ir.IRString("Acme Inc")))
	assert.Equal(t, ir.IRString("Acme"), mustGet(t, parent, "name"))
	assert.Equal(t, engine.Loaded, parent.Status())

	require.NoError(t, child.Commit(ctx))
	assert.Equal(t, engine.Loaded, clone.Status())
	assert.Equal(t, ir.IRString("Acme Inc"), mustGet(t, parent, "name"))
	assert.Equal(t, engine.Modified, parent.Status())
	require.NoError(t, child.Close())

	// Nothing reached the store yet.
	other := openUnitOfWork(t, repo)
	assert.Equal(t, ir.IRString("Acme"), mustGet(t, mustEntity(t, other, "Company", "c1"), "name"))

	require.NoError(t, root.Commit(ctx))
	third := openUnitOfWork(t, repo)
	assert.Equal(t, ir.IRString("Acme Inc"), mustGet(t, mustEntity(t, third, "Company", "c1"), "name"))
}

func TestNestedConflictNamesEntity(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme", "c2", "Beta")

	root := openUnitOfWork(t, repo)
	child := nested(t, root)
	defer child.Close()

	require.NoError(t, mustEntity(t, child, "Company", "c1").Set("name", ir.IRString("child")))
	require.NoError(t, mustEntity(t, child, "Company", "c2").Set("name", ir.IRString("child")))

	// The parent changes X after the child cloned it.
	require.NoError(t, mustEntity(t, root, "Company", "c1").Set("name", ir.IRString("parent")))

	err := child.Prepare(ctx)
	require.Error(t, err)
	assert.True(t, engine.IsConcurrentModification(err))

	var me *engine.ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "Company", me.Type)
	assert.Equal(t, []string{"c1"}, me.EntityIDs)

	err = child.Commit(ctx)
	assert.True(t, engine.IsNotPrepared(err))

	// The parent was left untouched, including c2.
	assert.Equal(t, ir.IRString("parent"), mustGet(t, mustEntity(t, root, "Company", "c1"), "name"))
	assert.Equal(t, ir.IRString("Beta"), mustGet(t, mustEntity(t, root, "Company", "c2"), "name"))
}

func TestNestedConflictWhenParentRemoved(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme")

	root := openUnitOfWork(t, repo)
	child := nested(t, root)
	defer child.Close()

	clone := mustEntity(t, child, "Company", "c1")
	require.NoError(t, root.RemoveEntity(mustEntity(t, root, "Company", "c1")))
	require.NoError(t, clone.Set("name", ir.IRString("child")))

	err := child.Prepare(ctx)
	assert.True(t, engine.IsConcurrentModification(err))
}

func TestSiblingNestedIsolation(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme")

	root := openUnitOfWork(t, repo)
	a := nested(t, root)
	b := nested(t, root)

	inA := mustEntity(t, a, "Company", "c1")
	inB := mustEntity(t, b, "Company", "c1")
	assert.NotSame(t, inA, inB)

	require.NoError(t, inA.Set("name", ir.IRString("from a")))
	assert.Equal(t, ir.IRString("Acme"), mustGet(t, inB, "name"))

	require.NoError(t, a.Commit(ctx))
	require.NoError(t, a.Close())
	assert.Equal(t, ir.IRString("Acme"), mustGet(t, inB, "name"))

	// b cloned c1 before a merged, so its change conflicts.
	require.NoError(t, inB.Set("name", ir.IRString("from b")))
	assert.True(t, engine.IsConcurrentModification(b.Prepare(ctx)))
	require.NoError(t, b.Close())

	c := nested(t, root)
	defer c.Close()
	assert.Equal(t, ir.IRString("from a"), mustGet(t, mustEntity(t, c, "Company", "c1"), "name"))
}

func TestNestedQueryRechecksEarlierClones(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme", "c2", "Beta")

	root := openUnitOfWork(t, repo)
	a := nested(t, root)
	b := nested(t, root)
	defer b.Close()

	// b holds clones of both companies before a merges its change.
	assert.Equal(t, ir.IRString("Acme"), mustGet(t, mustEntity(t, b, "Company", "c1"), "name"))
	mustEntity(t, b, "Company", "c2")

	require.NoError(t, mustEntity(t, a, "Company", "c1").Set("name", ir.IRString("from a")))
	require.NoError(t, a.Commit(ctx))
	require.NoError(t, a.Close())

	rs, err := b.Query("Company").Where(query.Eq("name", ir.IRString("from a"))).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{}, ids(t, rs))

	rs, err = b.Query("Company").Where(query.NotEq("name", ir.IRString("Acme"))).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids(t, rs))

	// A fresh sibling clones the merged state.
	c := nested(t, root)
	defer c.Close()
	rs, err = c.Query("Company").Where(query.Eq("name", ir.IRString("from a"))).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids(t, rs))
}

func TestNestedCreateAndRemove(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme")

	root := openUnitOfWork(t, repo)
	child := nested(t, root)
	defer child.Close()

	created, err := child.CreateEntity(ctx, "Company", "", named("Child Co"))
	require.NoError(t, err)
	assert.Equal(t, "Company-1", created.ID())

	// An id the parent knows is taken.
	_, err = child.CreateEntity(ctx, "Company", "c1")
	assert.True(t, engine.IsDuplicateID(err))

	require.NoError(t, child.RemoveEntity(mustEntity(t, child, "Company", "c1")))

	// Created and removed again: dropped at merge.
	temp, err := child.CreateEntity(ctx, "Company", "tmp")
	require.NoError(t, err)
	require.NoError(t, child.RemoveEntity(temp))

	missing, err := root.Entity(ctx, "Company", created.ID())
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, child.Commit(ctx))

	merged := mustEntity(t, root, "Company", created.ID())
	assert.Equal(t, engine.Created, merged.Status())
	assert.Equal(t, ir.IRString("Child Co"), mustGet(t, merged, "name"))

	removed, err := root.Entity(ctx, "Company", "c1")
	require.NoError(t, err)
	assert.Nil(t, removed)

	tmp, err := root.Entity(ctx, "Company", "tmp")
	require.NoError(t, err)
	assert.Nil(t, tmp)

	require.NoError(t, root.Commit(ctx))

	check := openUnitOfWork(t, repo)
	rs, err := check.Query("Company").Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{created.ID()}, ids(t, rs))
}

func TestNestedQuerySeesParentChanges(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme", "c2", "Beta")

	root := openUnitOfWork(t, repo)
	_, err := root.CreateEntity(ctx, "Company", "c3", named("Acme"))
	require.NoError(t, err)

	child := nested(t, root)
	defer child.Close()
	require.NoError(t, mustEntity(t, child, "Company", "c2").Set("name", ir.IRString("Acme")))

	rs, err := child.Query("Company").Where(query.Eq("name", ir.IRString("Acme"))).Execute(ctx)
	require.NoError(t, err)
	entities, err := rs.Entities()
	require.NoError(t, err)

	got := []string{}
	for _, e := range entities {
		assert.Same(t, child, e.UnitOfWork())
		got = append(got, e.ID())
	}
	assert.Equal(t, []string{"c1", "c3", "c2"}, got)

	// Without changes of the type the parent's size is used.
	clean := nested(t, root)
	defer clean.Close()
	rs, err = clean.Query("Company").Execute(ctx)
	require.NoError(t, err)
	size, err := rs.Size()
	require.NoError(t, err)
	assert.Equal(t, 3, size)
}

func TestNestedRollback(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme")

	root := openUnitOfWork(t, repo)
	child := nested(t, root)
	defer child.Close()

	clone := mustEntity(t, child, "Company", "c1")
	require.NoError(t, clone.Set("name", ir.IRString("child")))
	require.NoError(t, child.Rollback(ctx))

	assert.Equal(t, engine.Evicted, clone.Status())
	assert.Equal(t, ir.IRString("Acme"), mustGet(t, mustEntity(t, child, "Company", "c1"), "name"))
	assert.Empty(t, root.Modified())
}

func TestNestedOfNested(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme")

	root := openUnitOfWork(t, repo)
	mid := nested(t, root)
	leaf := nested(t, mid)

	require.NoError(t, mustEntity(t, leaf, "Company", "c1").Set("name", ir.IRString("leaf")))
	require.NoError(t, leaf.Commit(ctx))
	require.NoError(t, leaf.Close())

	assert.Equal(t, ir.IRString("leaf"), mustGet(t, mustEntity(t, mid, "Company", "c1"), "name"))
	assert.Equal(t, ir.IRString("Acme"), mustGet(t, mustEntity(t, root, "Company", "c1"), "name"))

	require.NoError(t, mid.Commit(ctx))
	require.NoError(t, mid.Close())
	require.NoError(t, root.Commit(ctx))

	check := openUnitOfWork(t, repo)
	assert.Equal(t, ir.IRString("leaf"), mustGet(t, mustEntity(t, check, "Company", "c1"), "name"))
}
