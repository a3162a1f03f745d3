package recordstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/record"
	"github.com/roach88/entigraph/internal/record/memory"
	"github.com/roach88/entigraph/internal/schema"
	"github.com/roach88/entigraph/internal/testutil"
)

type address struct {
	street string
	nr     int
}

func companyDoc(id, name string, addr *address, more []address, employees []string, chief string) *record.Document {
	doc := record.NewDocument(id, "Company")
	doc.Put("name", ir.IRString(name))
	if addr != nil {
		doc.Put("address/_type_", ir.IRString("Address"))
		doc.Put("address/street", ir.IRString(addr.street))
		doc.Put("address/nr", ir.IRInt(addr.nr))
	}
	if len(more) > 0 {
		base := record.Path("moreAddresses")
		for i, a := range more {
			slot := base.Index(i)
			doc.Put(slot.Type(), ir.IRString("Address"))
			doc.Put(string(slot.Field("street")), ir.IRString(a.street))
			doc.Put(string(slot.Field("nr")), ir.IRInt(a.nr))
		}
		doc.Put(base.Size(), ir.IRInt(len(more)))
	}
	if len(employees) > 0 {
		base := record.Path("employees")
		for i, e := range employees {
			doc.Put(string(base.Index(i)), ir.IRString(e))
		}
		doc.Put(base.Size(), ir.IRInt(len(employees)))
	}
	if chief != "" {
		doc.Put("chief", ir.IRString(chief))
	}
	return doc
}

func employeeDoc(id, name, company string) *record.Document {
	doc := record.NewDocument(id, "Employee")
	doc.Put("name", ir.IRString(name))
	doc.Put("company", ir.IRString(company))
	return doc
}

// fixture stores three companies and three employees:
//
//	c1 Acme   address Main, moreAddresses [First, Second], employees [e1 e2], chief e1
//	c2 Beta   moreAddresses [Second], employees [e3]
//	c3 Gamma  nothing
func fixture(t *testing.T) (*Store, *schema.Registry) {
	t.Helper()
	reg := testutil.CompanySchema()

	records := memoryWith(t,
		companyDoc("c1", "Acme", &address{"Main", 1}, []address{{"First", 1}, {"Second", 2}}, []string{"e1", "e2"}, "e1"),
		companyDoc("c2", "Beta", nil, []address{{"Second", 7}}, []string{"e3"}, ""),
		companyDoc("c3", "Gamma", nil, nil, nil, ""),
		employeeDoc("e1", "Ann", "c1"),
		employeeDoc("e2", "Bob", "c1"),
		employeeDoc("e3", "Cid", "c2"),
	)

	s := New(records, reg)
	t.Cleanup(func() { s.Close() })
	return s, reg
}

func memoryWith(t *testing.T, docs ...*record.Document) *memory.Store {
	t.Helper()
	records := memory.New()
	var b record.Batch
	for _, doc := range docs {
		b.Put(doc, "")
	}
	require.NoError(t, records.Apply(context.Background(), &b))
	return records
}

func entityType(t *testing.T, reg *schema.Registry, name string) *schema.Type {
	t.Helper()
	typ, err := reg.Entity(name)
	require.NoError(t, err)
	return typ
}
