package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/tallman/core"
)

const (
	orderingParam = "ordering"
	objectKey     = "object"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// queryBool parses an optional boolean query param. Invalid values are ignored.
func queryBool(ctx echo.Context, name string) *bool {
	val := ctx.QueryParam(name)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil
	}
	return &b
}

func queryInt(ctx echo.Context, name string, def int) int {
	n, err := strconv.Atoi(ctx.QueryParam(name))
	if err != nil {
		return def
	}
	return n
}

// queryList collects a repeated param (`?role=a&role=b`) and comma separated values.
func queryList(ctx echo.Context, name string) []string {
	var vals []string
	for _, v := range ctx.QueryParams()[name] {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				vals = append(vals, item)
			}
		}
	}
	return vals
}
