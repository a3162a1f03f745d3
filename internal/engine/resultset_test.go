package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entigraph/internal/engine"
	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/query"
	"github.com/roach88/entigraph/internal/record"
)

func TestQueryMergesUncommittedChanges(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme", "c2", "Beta", "c4", "Acme")

	u := openUnitOfWork(t, repo)
	_, err := u.CreateEntity(ctx, "Company", "c3", named("Acme"))
	require.NoError(t, err)
	require.NoError(t, mustEntity(t, u, "Company", "c2").Set("name", ir.IRString("Acme")))
	require.NoError(t, mustEntity(t, u, "Company", "c4").Set("name", ir.IRString("Zed")))

	rs, err := u.Query("Company").Where(query.Eq("name", ir.IRString("Acme"))).Execute(ctx)
	require.NoError(t, err)
	defer rs.Close()

	size, err := rs.Size()
	require.NoError(t, err)
	assert.Equal(t, 3, size)
	assert.Equal(t, []string{"c1", "c3", "c2"}, ids(t, rs))

	// Iterating again replays the same entities.
	first, err := rs.Entities()
	require.NoError(t, err)
	assert.Same(t, mustEntity(t, u, "Company", "c1"), first[0])
	assert.Equal(t, []string{"c1", "c3", "c2"}, ids(t, rs))
}

func TestQueryAfterRemove(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme", "c2", "Beta")

	u := openUnitOfWork(t, repo)
	require.NoError(t, u.RemoveEntity(mustEntity(t, u, "Company", "c1")))

	rs, err := u.Query("Company").Execute(ctx)
	require.NoError(t, err)
	size, err := rs.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)
	assert.Equal(t, []string{"c2"}, ids(t, rs))

	require.NoError(t, u.Commit(ctx))

	other := openUnitOfWork(t, repo)
	rs, err = other.Query("Company").Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids(t, rs))
}

func TestQuerySizeUsesStoreCountWhenClean(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme", "c2", "Beta", "c3", "Gamma")

	u := openUnitOfWork(t, repo)
	rs, err := u.Query("Company").MaxResults(2).Execute(ctx)
	require.NoError(t, err)
	defer rs.Close()

	size, err := rs.Size()
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	// Nothing was realized by Size.
	e, err := u.Entity(ctx, "Company", "c1")
	require.NoError(t, err)
	assert.NotNil(t, e)
	assert.Equal(t, []string{"c1", "c2"}, ids(t, rs))
}

func TestQueryPagingAppliesToCommittedHalf(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme", "c2", "Beta", "c3", "Gamma")

	u := openUnitOfWork(t, repo)
	_, err := u.CreateEntity(ctx, "Company", "c0", named("New"))
	require.NoError(t, err)

	rs, err := u.Query("Company").FirstResult(1).MaxResults(1).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c0"}, ids(t, rs))

	_, err = u.Query("Company").FirstResult(-1).Execute(ctx)
	assert.True(t, engine.IsUsage(err))
}

func TestQueryIteratorStopsEarly(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme", "c2", "Beta", "c3", "Gamma")

	u := openUnitOfWork(t, repo)
	rs, err := u.Query("Company").Execute(ctx)
	require.NoError(t, err)

	var seen []string
	for e, err := range rs.All() {
		require.NoError(t, err)
		seen = append(seen, e.ID())
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"c1", "c2"}, seen)
	require.NoError(t, rs.Close())

	// Realized results stay available after Close.
	assert.Equal(t, []string{"c1", "c2"}, ids(t, rs))
}

func TestQueryValidation(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	u := openUnitOfWork(t, repo)

	_, err := u.Query("Company").Where(query.Eq("nope", ir.IRString("x"))).Execute(ctx)
	require.Error(t, err)
	assert.True(t, engine.IsUsage(err))
	assert.ErrorContains(t, err, "no such property")

	_, err = u.Query("Address").Execute(ctx)
	assert.True(t, engine.IsUsage(err))
}

func TestQueryEvaluatesUncommittedComposites(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme")

	u := openUnitOfWork(t, repo)
	_, err := u.CreateEntity(ctx, "Company", "c2", named("Beta"), func(e *engine.Entity) error {
		more, err := e.Elements("moreAddresses")
		if err != nil {
			return err
		}
		_, err = more.Add(func(a *engine.Composite) error {
			return a.Set("street", ir.IRString("Harbour"))
		})
		return err
	})
	require.NoError(t, err)

	rs, err := u.Query("Company").
		Where(query.AnyElement("moreAddresses", query.Match("street", "Har*"))).
		Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids(t, rs))

	rs, err = u.Query("Company").
		Where(query.EveryElement("moreAddresses", query.Match("street", "Har*"))).
		Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids(t, rs))
}

func TestQueryNativeExpression(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme", "c2", "Omni")

	u := openUnitOfWork(t, repo)
	_, err := u.CreateEntity(ctx, "Company", "c3", named("Omega"))
	require.NoError(t, err)

	rs, err := u.Query("Company").
		Where(query.NativeQuery(record.Wildcard{Field: "name", Pattern: "O*"})).
		Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c3"}, ids(t, rs))
}

func TestSlotBoundTracksInserts(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme", "c2", "Beta")

	addStreets := func(u *engine.UnitOfWork, id string, streets ...string) {
		more, err := mustEntity(t, u, "Company", id).Elements("moreAddresses")
		require.NoError(t, err)
		for _, s := range streets {
			_, err := more.Add(func(a *engine.Composite) error {
				return a.Set("street", ir.IRString(s))
			})
			require.NoError(t, err)
		}
	}

	u := openUnitOfWork(t, repo)
	addStreets(u, "c1", "First")
	require.NoError(t, u.Commit(ctx))

	u = openUnitOfWork(t, repo)
	addStreets(u, "c2", "One", "Two", "Three", "Four")
	require.NoError(t, u.Commit(ctx))

	u = openUnitOfWork(t, repo)
	rs, err := u.Query("Company").
		Where(query.AnyElement("moreAddresses", query.Eq("street", ir.IRString("Four")))).
		Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids(t, rs))

	// Removing shrinks the collection; the remaining slots stay queryable.
	more, err := mustEntity(t, u, "Company", "c2").Elements("moreAddresses")
	require.NoError(t, err)
	require.NoError(t, more.RemoveAt(0))
	require.NoError(t, u.Commit(ctx))

	u = openUnitOfWork(t, repo)
	rs, err = u.Query("Company").
		Where(query.AnyElement("moreAddresses", query.Eq("street", ir.IRString("Four")))).
		Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids(t, rs))
}

func TestNativeExpressionSeesUncommittedCollections(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	seedCompanies(t, repo, "c1", "Acme")

	addStreets := func(e *engine.Entity, streets ...string) error {
		more, err := e.Elements("moreAddresses")
		if err != nil {
			return err
		}
		for _, s := range streets {
			if _, err := more.Add(func(a *engine.Composite) error {
				return a.Set("street", ir.IRString(s))
			}); err != nil {
				return err
			}
		}
		return nil
	}

	u := openUnitOfWork(t, repo)
	require.NoError(t, addStreets(mustEntity(t, u, "Company", "c1"), "First"))
	require.NoError(t, u.Commit(ctx))

	// c2 holds more elements than any committed company.
	u = openUnitOfWork(t, repo)
	_, err := u.CreateEntity(ctx, "Company", "c2", named("Beta"), func(e *engine.Entity) error {
		return addStreets(e, "One", "Two", "Three")
	})
	require.NoError(t, err)

	tests := []struct {
		street string
		want   []string
	}{
		{"First", []string{"c1"}},
		{"One", []string{"c2"}},
		{"Three", []string{"c2"}},
		{"Nowhere", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.street, func(t *testing.T) {
			rs, err := u.Query("Company").
				Where(query.AllOf(
					query.NativeQuery(record.MatchAll{}),
					query.AnyElement("moreAddresses", query.Eq("street", ir.IRString(tt.street))),
				)).
				Execute(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(t, rs))
		})
	}
}
