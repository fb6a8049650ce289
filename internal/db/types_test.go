package db

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestInferImplicitKeys(t *testing.T) {
	snap := &SchemaSnapshot{Tables: []Table{
		{
			Name: "Customer",
			Columns: []Column{
				{Name: "CustomerId", Type: "INTEGER", PrimaryKey: true},
				{Name: "Name", Type: "TEXT"},
			},
		},
		{
			Name: "Invoice",
			Columns: []Column{
				{Name: "InvoiceId", Type: "INTEGER", PrimaryKey: true},
				{Name: "CustomerId", Type: "INTEGER"},
				{Name: "paid", Type: "INTEGER"},
			},
		},
		{
			Name: "orders",
			Columns: []Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "customer_id", Type: "INTEGER"},
			},
			// Already declared: must not be duplicated as implicit.
			ForeignKeys: []ForeignKey{
				{Column: "customer_id", RefTable: "Customer", RefColumn: "CustomerId", Type: "declared"},
			},
		},
	}}

	snap.InferImplicitKeys()

	invoice, _ := snap.Table("invoice")
	want := []ForeignKey{{Column: "CustomerId", RefTable: "Customer", RefColumn: "CustomerId", Type: "implicit"}}
	if diff := cmp.Diff(want, invoice.ForeignKeys); diff != "" {
		t.Errorf("Invoice foreign keys mismatch (-want +got):\n%s", diff)
	}

	orders, _ := snap.Table("orders")
	assert.Len(t, orders.ForeignKeys, 1, "declared key must not be duplicated")
	assert.Equal(t, "declared", orders.ForeignKeys[0].Type)

	customer, _ := snap.Table("customer")
	assert.Empty(t, customer.ForeignKeys, "a table's own primary key is not a foreign key")
}

func TestTypeHelpers(t *testing.T) {
	assert.True(t, IsTextType("VARCHAR(80)"))
	assert.True(t, IsTextType("text"))
	assert.True(t, IsTextType("NVARCHAR"))
	assert.False(t, IsTextType("INTEGER"))

	assert.True(t, IsNumericType("INTEGER"))
	assert.True(t, IsNumericType("NUMERIC(10,2)"))
	assert.True(t, IsNumericType("double precision"))
	assert.False(t, IsNumericType("TEXT"))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"customers"`, quoteIdent("customers"))
	assert.Equal(t, `"we""ird"`, quoteIdent(`we"ird`))
}
