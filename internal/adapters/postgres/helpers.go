package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// nullText converts a string to pgtype.Text, treating "" as NULL
func nullText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// numericToDecimal converts a pgtype.Numeric to decimal.Decimal
func numericToDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, nil
	}
	v, err := n.Value()
	if err != nil {
		return decimal.Zero, fmt.Errorf("numeric value: %w", err)
	}
	s, ok := v.(string)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected numeric driver type %T", v)
	}
	return decimal.NewFromString(s)
}
