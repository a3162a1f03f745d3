package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/record"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store, docs ...*record.Document) {
	t.Helper()
	var b record.Batch
	for _, d := range docs {
		b.Put(d, "")
	}
	require.NoError(t, s.Apply(context.Background(), &b))
}

func address(id, street string, nr int64, more int) *record.Document {
	doc := record.NewDocument(id, "Company")
	doc.Put("address/_type_", ir.IRString("Address"))
	doc.Put("address/street", ir.IRString(street))
	doc.Put("address/nr", ir.IRInt(nr))
	if more > 0 {
		doc.Put("moreAddresses/__size__", ir.IRInt(more))
	}
	return doc
}

func ids(t *testing.T, c record.Cursor) []string {
	t.Helper()
	defer c.Close()
	var out []string
	for c.Next() {
		out = append(out, c.Document().ID)
	}
	require.NoError(t, c.Err())
	return out
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var journal string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&journal))
	assert.Equal(t, "wal", journal)
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	seed(t, s, address("c1", "Südstrasse", 6, 0))

	doc, err := s.Get(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, "Company", doc.Type())
	assert.Equal(t, ir.IRString("Südstrasse"), doc.Get("address/street"))
	assert.Equal(t, ir.IRInt(6), doc.Get("address/nr"))

	expected, err := doc.Hash()
	require.NoError(t, err)
	assert.Equal(t, expected, doc.Version)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func TestStore_FindTermWildcardAndSort(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	seed(t, s,
		address("c1", "Südstrasse", 6, 1),
		address("c2", "Weststrasse", 1, 3),
		address("c3", "Nordweg", 6, 0),
	)

	c, err := s.Find(ctx, record.Search{Filter: record.Term{Field: "address/nr", Value: ir.IRInt(6)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c3"}, ids(t, c))

	c, err = s.Find(ctx, record.Search{Filter: record.Wildcard{Field: "address/street", Pattern: "*strasse"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids(t, c))

	c, err = s.Find(ctx, record.Search{
		Filter:    record.Term{Field: record.TypeField, Value: ir.IRString("Company")},
		SortField: "moreAddresses/__size__",
		Limit:     1,
	})
	require.NoError(t, err)
	require.True(t, c.Next())
	assert.Equal(t, "c2", c.Document().ID)
	assert.Equal(t, 3, c.Document().Int("moreAddresses/__size__"))
	require.NoError(t, c.Close())

	n, err := s.Count(ctx, record.Bool{MustNot: []record.Query{record.Exists{Field: "moreAddresses/__size__"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_ApplyReplacesFields(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	seed(t, s, address("c1", "Südstrasse", 6, 0))

	doc, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	doc.Put("address/street", ir.IRNull{})
	doc.Put("name", ir.IRString("Irgendeine"))

	var b record.Batch
	b.Put(doc, doc.Version)
	require.NoError(t, s.Apply(ctx, &b))

	n, err := s.Count(ctx, record.Exists{Field: "address/street"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.Count(ctx, record.Term{Field: "name", Value: ir.IRString("Irgendeine")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_ConflictRollsBackBatch(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	seed(t, s, address("c1", "Südstrasse", 6, 0))

	var b record.Batch
	b.Put(address("c2", "Weststrasse", 1, 0), "")
	b.Delete("c1", "stale-version")

	require.Error(t, s.Check(ctx, &b))
	err := s.Apply(ctx, &b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, record.ErrConflict))

	_, err = s.Get(ctx, "c2")
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func TestStore_DeleteCascadesFields(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	seed(t, s, address("c1", "Südstrasse", 6, 0))

	doc, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	var b record.Batch
	b.Delete("c1", doc.Version)
	require.NoError(t, s.Apply(ctx, &b))

	var rows int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM fields").Scan(&rows))
	assert.Equal(t, 0, rows)
}

func TestStore_FindLoadsBodiesInChunks(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	n := 2*findChunk + 10
	docs := make([]*record.Document, n)
	names := make(map[string]ir.IRValue, n)
	for i := range docs {
		docs[i] = record.NewDocument(fmt.Sprintf("c%03d", i), "Company")
		docs[i].Put("name", ir.IRString(fmt.Sprintf("Company %d", i)))
		names[docs[i].ID] = docs[i].Fields["name"]
	}
	seed(t, s, docs...)

	cur, err := s.Find(ctx, record.Search{Filter: record.Term{Field: record.TypeField, Value: ir.IRString("Company")}})
	require.NoError(t, err)

	// Delete a document the cursor has not loaded yet.
	gone := fmt.Sprintf("c%03d", findChunk+5)
	stored, err := s.Get(ctx, gone)
	require.NoError(t, err)
	var b record.Batch
	b.Delete(gone, stored.Version)
	require.NoError(t, s.Apply(ctx, &b))

	var got []string
	for cur.Next() {
		doc := cur.Document()
		assert.NotEmpty(t, doc.Version)
		assert.Equal(t, names[doc.ID], doc.Fields["name"])
		got = append(got, doc.ID)
	}
	require.NoError(t, cur.Err())
	require.NoError(t, cur.Close())

	assert.Len(t, got, n-1)
	assert.Equal(t, "c000", got[0])
	assert.Equal(t, fmt.Sprintf("c%03d", n-1), got[len(got)-1])
	assert.NotContains(t, got, gone)
	assert.False(t, cur.Next())
}
