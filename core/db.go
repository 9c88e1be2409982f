package core

import "strings"

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderByClause joins the orderings whose field is in `allowed`. Unknown fields are dropped.
func OrderByClause(orderings []DBOrdering, allowed ...string) string {
	parts := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		if ContainsString(allowed, ord.Field) {
			parts = append(parts, ord.String())
		}
	}
	return strings.Join(parts, ", ")
}
