// Package filter parses the minimal discovery filter grammar:
//
//	sourceType == SOLAR
//	availableQuantity >= 10
//	sourceType == WIND && availableQuantity >= 5
//
// Clauses are joined by && only. Anything else is a validation error on the
// synchronous path.
package filter

import (
	"strconv"
	"strings"

	catalogdomain "github.com/voltra-energy/voltra/internal/catalog/domain"
	protocoldomain "github.com/voltra-energy/voltra/internal/protocol/domain"
)

// Expression is the parsed filter. Nil pointer fields mean the clause was
// absent.
type Expression struct {
	SourceType   *catalogdomain.SourceType
	MinAvailable *int
}

// Parse compiles a textual filter. An empty string parses to an empty
// expression.
func Parse(raw string) (*Expression, error) {
	expr := &Expression{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return expr, nil
	}

	for _, clause := range strings.Split(raw, "&&") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			return nil, protocoldomain.NewValidationError("filter", "empty clause")
		}
		if err := parseClause(expr, clause); err != nil {
			return nil, err
		}
	}
	return expr, nil
}

func parseClause(expr *Expression, clause string) error {
	fields := strings.Fields(clause)
	if len(fields) != 3 {
		return protocoldomain.NewValidationError("filter", "clause must be <field> <op> <value>")
	}
	field, op, value := fields[0], fields[1], fields[2]

	switch field {
	case "sourceType":
		if op != "==" {
			return protocoldomain.NewValidationError("filter", "sourceType supports == only")
		}
		st := catalogdomain.SourceType(strings.ToUpper(value))
		if !catalogdomain.ValidSourceType(st) {
			return protocoldomain.NewValidationError("filter", "unknown source type "+value)
		}
		expr.SourceType = &st
		return nil

	case "availableQuantity":
		if op != ">=" {
			return protocoldomain.NewValidationError("filter", "availableQuantity supports >= only")
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return protocoldomain.NewValidationError("filter", "availableQuantity needs a non-negative integer")
		}
		expr.MinAvailable = &n
		return nil

	default:
		return protocoldomain.NewValidationError("filter", "unknown field "+field)
	}
}

// MatchItem applies the source-type clause to a catalog item.
func (e *Expression) MatchItem(sourceType catalogdomain.SourceType) bool {
	if e == nil || e.SourceType == nil {
		return true
	}
	return sourceType == *e.SourceType
}

// MatchAvailability applies the quantity clause to an offer's live count.
func (e *Expression) MatchAvailability(available int) bool {
	if e == nil || e.MinAvailable == nil {
		return true
	}
	return available >= *e.MinAvailable
}
