package handler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuongbtq/constituent-transfer/internal/domain"
	"github.com/gin-gonic/gin"
)

// ParsePaginationSpec reads filter, search, order_by, limit and page from the
// query string.
//
//	filter=city:in:Paris,Lyon&filter=created_at:between:2024-01-01,2024-02-01
//	order_by=created_at DESC
func ParsePaginationSpec(c *gin.Context) (domain.PaginationSpec, error) {
	spec := domain.PaginationSpec{
		Search: strings.TrimSpace(c.Query("search")),
		Sort:   domain.Sort{Key: "created_at", Order: domain.SortDesc},
		Limit:  domain.DefaultPageLimit,
	}

	for _, raw := range c.QueryArray("filter") {
		filter, err := parseFilter(raw)
		if err != nil {
			return domain.PaginationSpec{}, err
		}
		spec.Filters = append(spec.Filters, filter)
	}

	if orderBy := strings.Fields(c.Query("order_by")); len(orderBy) > 0 {
		if len(orderBy) > 2 {
			return domain.PaginationSpec{}, fmt.Errorf("%w: order_by must be \"<field> [ASC|DESC]\"", domain.ErrValidation)
		}
		spec.Sort.Key = strings.ToLower(orderBy[0])
		if len(orderBy) == 2 {
			spec.Sort.Order = strings.ToUpper(orderBy[1])
		}
	}

	var err error
	if spec.Limit, err = intQuery(c, "limit", domain.DefaultPageLimit); err != nil {
		return domain.PaginationSpec{}, err
	}
	if spec.Page, err = intQuery(c, "page", 0); err != nil {
		return domain.PaginationSpec{}, err
	}

	if err := spec.Validate(); err != nil {
		return domain.PaginationSpec{}, err
	}

	return spec, nil
}

func parseFilter(raw string) (domain.Filter, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[2] == "" {
		return domain.Filter{}, fmt.Errorf("%w: filter %q must be \"<field>:<operator>:<values>\"", domain.ErrValidation, raw)
	}

	values := strings.Split(parts[2], ",")
	for i := range values {
		values[i] = strings.TrimSpace(values[i])
	}

	return domain.Filter{
		Field:    strings.ToLower(strings.TrimSpace(parts[0])),
		Operator: strings.ToLower(strings.TrimSpace(parts[1])),
		Values:   values,
	}, nil
}

func intQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrValidation, key)
	}
	return n, nil
}
