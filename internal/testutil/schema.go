package testutil

import (
	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/schema"
)

// CompanySchema returns the registry used across package tests:
//
//	Company   name, chief -> Employee, employees ->> Employee,
//	          address: Address, moreAddresses: [Address], docs: [string]
//	Employee  name, firstname, age, rating (default "good"),
//	          company -> Company (back reference of employees)
//	Address   street, nr
func CompanySchema() *schema.Registry {
	return schema.MustRegistry(
		schema.NewEntity("Company").
			Value("name", schema.String).
			Association("chief", "Employee", schema.Nullable()).
			ManyAssociation("employees", "Employee", schema.BackReference("company")).
			Composite("address", "Address", schema.Nullable()).
			CompositeCollection("moreAddresses", "Address", schema.MaxOccurs(10)).
			Collection("docs", schema.String),
		schema.NewEntity("Employee").
			Value("name", schema.String).
			Value("firstname", schema.String, schema.Nullable()).
			Value("age", schema.Int, schema.Nullable()).
			Value("rating", schema.String, schema.Default(ir.IRString("good"))).
			Association("company", "Company", schema.Nullable(), schema.BackReference("employees")),
		schema.NewComposite("Address").
			Value("street", schema.String).
			Value("nr", schema.Int, schema.Nullable()),
	)
}
