package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_NeedsQuote(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name string
		want bool
	}{
		{"orderdate", false},
		{"order_date2", false},
		{"Order Date", true},
		{"Accounts", true},
		{"order", true},
		{"user", true},
		{"1col", true},
		{"col$1", false},
		{"naïve", true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.NeedsQuote(tt.name))
		})
	}
}

func TestPolicy_ExtraWords(t *testing.T) {
	p := NewPolicy("Tenant")
	assert.True(t, p.NeedsQuote("tenant"))
	assert.False(t, DefaultPolicy().NeedsQuote("tenant"))
	assert.Contains(t, p.Reserved(), "tenant")
}

func TestIdent_SQL(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, `"Order Date"`, p.Quote("Order Date"))
	assert.Equal(t, "orderdate", p.Quote("orderdate"))
	assert.Equal(t, `"a""b"`, Ident{Name: `a"b`, Quoted: true}.SQL())
}

func TestQualify(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, "t1", Qualify(p.Ident("public"), p.Ident("t1")))
	assert.Equal(t, "s1.t1", Qualify(p.Ident("s1"), p.Ident("t1")))
	assert.Equal(t, `"S 1"."T"`, Qualify(p.Ident("S 1"), p.Ident("T")))
	assert.Equal(t, "t1", Qualify(Ident{}, p.Ident("t1")))
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "'it''s'", Literal("it's"))
}
