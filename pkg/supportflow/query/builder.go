package query

import "strings"

// Order status codes.
const (
	StatusApproved  = 3
	StatusDelivered = 4
	StatusCancelled = 5
	StatusFailed    = 6
)

// Row limits. MaxRowLimit is a hard cap applied regardless of what the
// caller asks for.
const (
	DefaultRowLimit = 100
	MaxRowLimit     = 500
)

// Filters is the closed vocabulary of order-list predicates. Fields
// left at their zero value are omitted from the query. Location fields
// are admin-only and silently dropped for customer scopes.
type Filters struct {
	// Status.
	StatusCode *int

	// Date. UseToday wins over OrderDate, which wins over the range.
	UseToday  bool
	OrderDate string
	StartDate string
	EndDate   string

	// Location (admin only).
	TownName         string
	TownID           int64
	RouteID          int64
	RouteName        string
	LocalityName     string
	HubID            int64
	ProductionUnitID int64
	DistributorType  string

	// Flags.
	IsSubscribed *bool
	IsReturn     *bool
	IsFreeOrder  *bool

	// Thresholds and lookups.
	MinAmount *float64
	OrderCode string

	Limit int
}

// Query is a built statement with its bound parameters.
type Query struct {
	SQL  string
	Args []any
}

const orderColumns = `id AS order_id, order_code, user_name, order_date, order_status,
       order_total_amount, town_name, route_name, locality_name,
       expected_delivery_date, delivered_date, cancelled_date,
       is_subscribed, remark, reason`

// BuildOrderList composes the order-list query for a resolved scope.
// Predicates are conjunctive and fully parameterized.
func BuildOrderList(scope Scope, f Filters) Query {
	var conds []string
	var args []any

	add := func(cond string, vals ...any) {
		conds = append(conds, cond)
		args = append(args, vals...)
	}

	if scope.UserID != 0 {
		add("user_id = ?", scope.UserID)
	}

	if f.StatusCode != nil {
		add("order_status = ?", *f.StatusCode)
	}

	switch {
	case f.UseToday:
		conds = append(conds, "date(order_date) = date('now', 'localtime')")
	case f.OrderDate != "":
		add("date(order_date) = ?", f.OrderDate)
	case f.StartDate != "" && f.EndDate != "":
		add("date(order_date) BETWEEN ? AND ?", f.StartDate, f.EndDate)
	case f.StartDate != "":
		add("date(order_date) >= ?", f.StartDate)
	case f.EndDate != "":
		add("date(order_date) <= ?", f.EndDate)
	}

	if f.OrderCode != "" {
		add("order_code = ?", f.OrderCode)
	}

	if scope.Role == RoleAdmin {
		switch {
		case f.TownID != 0:
			add("town_id = ?", f.TownID)
		case f.TownName != "":
			add("town_name LIKE ?", "%"+f.TownName+"%")
		}
		switch {
		case f.RouteID != 0:
			add("route_id = ?", f.RouteID)
		case f.RouteName != "":
			add("route_name LIKE ?", "%"+f.RouteName+"%")
		}
		if f.LocalityName != "" {
			add("locality_name LIKE ?", "%"+f.LocalityName+"%")
		}
		if f.HubID != 0 {
			add("hub_id = ?", f.HubID)
		}
		if f.ProductionUnitID != 0 {
			add("production_unit_id = ?", f.ProductionUnitID)
		}
		if f.DistributorType != "" {
			add("distributor_type LIKE ?", "%"+f.DistributorType+"%")
		}
	}

	if f.IsSubscribed != nil {
		add("is_subscribed = ?", boolToInt(*f.IsSubscribed))
	}
	if f.IsReturn != nil {
		add("is_return = ?", boolToInt(*f.IsReturn))
	}
	if f.IsFreeOrder != nil {
		add("is_free_order = ?", boolToInt(*f.IsFreeOrder))
	}
	if f.MinAmount != nil {
		add("order_total_amount >= ?", *f.MinAmount)
	}

	where := "1=1"
	if len(conds) > 0 {
		where = strings.Join(conds, " AND ")
	}
	args = append(args, clampLimit(f.Limit))

	return Query{
		SQL: "SELECT " + orderColumns + "\nFROM sp_secondary_orders\nWHERE " + where +
			"\nORDER BY id DESC\nLIMIT ?",
		Args: args,
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRowLimit
	}
	if limit > MaxRowLimit {
		return MaxRowLimit
	}
	return limit
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
