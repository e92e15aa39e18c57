// Package support assembles the customer-support desk: the domain
// toolsets over the order database and the stage graph that routes
// tickets between departments.
package support

import (
	"database/sql"
	"encoding/json"

	"github.com/randalmurphal/supportflow/pkg/supportflow/query"
	"github.com/randalmurphal/supportflow/pkg/supportflow/tool"
)

// Observation messages returned when a query matches nothing. They are
// fed to the model as tool results, never as errors.
const (
	noOrdersFound        = "No orders found matching the given filters."
	orderNotFound        = "Order not found."
	noItemsFound         = "No items found for this order."
	noSubscriptionsFound = "No subscriptions found."
	notCancelled         = "Order not found or is not cancelled."
	adminOnlySummary     = "Access denied: daily sales summary requires admin access."
	adminOnlyReports     = "Access denied: top reports require admin access."
)

// Toolset builds the order-database tools. Caller identity comes from
// the tool context, never from model-supplied arguments; only the
// optional admin target is read from arguments.
type Toolset struct {
	runner *query.Runner
	roles  *query.RoleResolver
}

// NewToolset wraps an open database handle. cache may be nil for
// defaults.
func NewToolset(db *sql.DB, cache *query.RoleCache) *Toolset {
	return &Toolset{
		runner: query.NewRunner(db),
		roles:  query.NewRoleResolver(db, cache),
	}
}

// scope resolves the caller's effective identity for this call.
func (ts *Toolset) scope(toolCtx *tool.Context, args map[string]any) (query.Scope, error) {
	role, err := ts.roles.Resolve(toolCtx, toolCtx.SessionUserID)
	if err != nil {
		return query.Scope{}, err
	}
	return query.ResolveScope(role, toolCtx.SessionUserID, argInt64(args, "target_user_id")), nil
}

// OrdersFiltered is the primary order-list tool: any combination of
// the closed filter vocabulary in one call.
func (ts *Toolset) OrdersFiltered() tool.Tool {
	return tool.NewFunctionTool(
		"get_orders_filtered",
		"Primary order query tool. Combine any filters in one call: status code (3=Approved, 4=Delivered, 5=Cancelled, 6=Failed), dates (use_today, order_date, start_date/end_date as YYYY-MM-DD), location (admin only), flags, minimum amount, order code.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status_code":        map[string]any{"type": "integer", "description": "3=Approved, 4=Delivered, 5=Cancelled, 6=Failed"},
				"use_today":          map[string]any{"type": "boolean", "description": "Restrict to today's orders"},
				"order_date":         map[string]any{"type": "string", "description": "Exact date YYYY-MM-DD"},
				"start_date":         map[string]any{"type": "string", "description": "Range start YYYY-MM-DD"},
				"end_date":           map[string]any{"type": "string", "description": "Range end YYYY-MM-DD"},
				"town_name":          map[string]any{"type": "string", "description": "Admin only"},
				"town_id":            map[string]any{"type": "integer", "description": "Admin only"},
				"route_id":           map[string]any{"type": "integer", "description": "Admin only"},
				"route_name":         map[string]any{"type": "string", "description": "Admin only"},
				"locality_name":      map[string]any{"type": "string", "description": "Admin only"},
				"hub_id":             map[string]any{"type": "integer", "description": "Admin only"},
				"production_unit_id": map[string]any{"type": "integer", "description": "Admin only"},
				"distributor_type":   map[string]any{"type": "string", "description": "Admin only"},
				"target_user_id":     map[string]any{"type": "integer", "description": "Admin only: query another user's orders"},
				"is_subscribed":      map[string]any{"type": "boolean"},
				"is_return":          map[string]any{"type": "boolean"},
				"is_free_order":      map[string]any{"type": "boolean"},
				"min_amount":         map[string]any{"type": "number"},
				"order_code":         map[string]any{"type": "string"},
				"limit":              map[string]any{"type": "integer"},
			},
		},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			scope, err := ts.scope(toolCtx, args)
			if err != nil {
				return nil, err
			}
			filters := query.Filters{
				StatusCode:       argIntPtr(args, "status_code"),
				UseToday:         argBool(args, "use_today"),
				OrderDate:        argString(args, "order_date"),
				StartDate:        argString(args, "start_date"),
				EndDate:          argString(args, "end_date"),
				TownName:         argString(args, "town_name"),
				TownID:           argInt64(args, "town_id"),
				RouteID:          argInt64(args, "route_id"),
				RouteName:        argString(args, "route_name"),
				LocalityName:     argString(args, "locality_name"),
				HubID:            argInt64(args, "hub_id"),
				ProductionUnitID: argInt64(args, "production_unit_id"),
				DistributorType:  argString(args, "distributor_type"),
				IsSubscribed:     argBoolPtr(args, "is_subscribed"),
				IsReturn:         argBoolPtr(args, "is_return"),
				IsFreeOrder:      argBoolPtr(args, "is_free_order"),
				MinAmount:        argFloatPtr(args, "min_amount"),
				OrderCode:        argString(args, "order_code"),
				Limit:            int(argInt64(args, "limit")),
			}
			rows, err := ts.runner.Run(toolCtx, query.BuildOrderList(scope, filters))
			if err == query.ErrNoRows {
				return noOrdersFound, nil
			}
			return rows, err
		},
	)
}

// OrderDetails returns the full record of one order.
func (ts *Toolset) OrderDetails() tool.Tool {
	return tool.NewFunctionTool(
		"get_order_details",
		"Full details of one specific order, by order_id or order_code.",
		orderLookupSchema,
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			q, msg, err := ts.orderLookup(toolCtx, args,
				"SELECT * FROM sp_secondary_orders WHERE ", "")
			if err != nil {
				return nil, err
			}
			if msg != "" {
				return msg, nil
			}
			rows, err := ts.runner.Run(toolCtx, q)
			if err == query.ErrNoRows {
				return orderNotFound, nil
			}
			return rows, err
		},
	)
}

// OrderItems returns the line items inside one order.
func (ts *Toolset) OrderItems() tool.Tool {
	return tool.NewFunctionTool(
		"get_order_items",
		"All products/items inside one order, by order_id or order_code.",
		orderLookupSchema,
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			scope, err := ts.scope(toolCtx, args)
			if err != nil {
				return nil, err
			}

			var cond string
			var params []any
			switch {
			case argInt64(args, "order_id") != 0:
				cond, params = "o.id = ?", []any{argInt64(args, "order_id")}
			case argString(args, "order_code") != "":
				cond, params = "o.order_code = ?", []any{argString(args, "order_code")}
			default:
				return "Please provide order_id or order_code.", nil
			}
			if scope.Role == query.RoleCustomer {
				cond += " AND o.user_id = ?"
				params = append(params, scope.UserID)
			}

			rows, err := ts.runner.Run(toolCtx, query.Query{
				SQL: `SELECT d.product_name, d.product_variant_name, d.quantity, d.rate,
       d.amount, d.gst, d.taxable_amount, d.final_amount,
       d.quantity_in_ltr, d.quantity_in_pouch, d.is_free
FROM sp_secondary_orders o
LEFT JOIN sp_secondary_order_details d ON o.id = d.order_id
WHERE ` + cond,
				Args: params,
			})
			if err == query.ErrNoRows {
				return noItemsFound, nil
			}
			return rows, err
		},
	)
}

// OutstandingAmount reports a user's outstanding balance, wallet
// amount, and credit limit.
func (ts *Toolset) OutstandingAmount() tool.Tool {
	return tool.NewFunctionTool(
		"get_outstanding_amount",
		"Outstanding amount, wallet balance, and credit limit for a user. Customers see their own; admins may pass target_user_id.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target_user_id": map[string]any{"type": "integer", "description": "Admin only"},
			},
		},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			scope, err := ts.scope(toolCtx, args)
			if err != nil {
				return nil, err
			}
			lookupID := scope.UserID
			if lookupID == 0 {
				lookupID = toolCtx.SessionUserID
			}
			row, err := ts.runner.RunOne(toolCtx, query.Query{
				SQL: `SELECT u.id, u.first_name || ' ' || u.last_name AS customer_name,
       b.outstanding_amount, b.wallet_amount, b.credit_limit
FROM sp_users u
LEFT JOIN sp_basic_details b ON u.id = b.user_id
WHERE u.id = ?`,
				Args: []any{lookupID},
			})
			if err == query.ErrNoRows {
				return "No financial info found for this user.", nil
			}
			return row, err
		},
	)
}

// SubscriptionOrders lists subscription plans.
func (ts *Toolset) SubscriptionOrders() tool.Tool {
	return tool.NewFunctionTool(
		"get_subscription_orders",
		"Subscription plans for a user. Filter by plan_type (daily, alternate_day, double_alternate, custom), status, or subscription id.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target_user_id":  map[string]any{"type": "integer", "description": "Admin only"},
				"plan_type":       map[string]any{"type": "string"},
				"status":          map[string]any{"type": "string"},
				"subscription_id": map[string]any{"type": "integer"},
			},
		},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			scope, err := ts.scope(toolCtx, args)
			if err != nil {
				return nil, err
			}

			conds := []string{}
			params := []any{}
			if scope.UserID != 0 {
				conds = append(conds, "user_id = ?")
				params = append(params, scope.UserID)
			}
			if v := argString(args, "plan_type"); v != "" {
				conds = append(conds, "plan_type = ?")
				params = append(params, v)
			}
			if v := argString(args, "status"); v != "" {
				conds = append(conds, "status = ?")
				params = append(params, v)
			}
			if v := argInt64(args, "subscription_id"); v != 0 {
				conds = append(conds, "id = ?")
				params = append(params, v)
			}
			where := "1=1"
			if len(conds) > 0 {
				where = joinAnd(conds)
			}

			rows, err := ts.runner.Run(toolCtx, query.Query{
				SQL: `SELECT id, user_name, product_name, product_variant_name, plan_type,
       plan_days, quantity, rate, total_amount, start_date, end_date,
       status, delivery_instruction, custom_days
FROM sp_subscriptions WHERE ` + where + " ORDER BY id DESC",
				Args: params,
			})
			if err == query.ErrNoRows {
				return noSubscriptionsFound, nil
			}
			return rows, err
		},
	)
}

// CancelledOrderReason explains why, when, and by whom an order was
// cancelled.
func (ts *Toolset) CancelledOrderReason() tool.Tool {
	return tool.NewFunctionTool(
		"get_cancelled_order_reason",
		"Why a specific order was cancelled, who cancelled it, and when. By order_id or order_code.",
		orderLookupSchema,
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			q, msg, err := ts.orderLookup(toolCtx, args,
				`SELECT id, order_code, order_status, reason, remark,
       cancelled_by, cancelled_date, updated_by, updated_date
FROM sp_secondary_orders WHERE `, " AND order_status = 5")
			if err != nil {
				return nil, err
			}
			if msg != "" {
				return msg, nil
			}
			rows, err := ts.runner.Run(toolCtx, q)
			if err == query.ErrNoRows {
				return notCancelled, nil
			}
			return rows, err
		},
	)
}

// DailySalesSummary is the admin sales dashboard for one day.
func (ts *Toolset) DailySalesSummary() tool.Tool {
	return tool.NewFunctionTool(
		"get_daily_sales_summary",
		"Admin only: daily sales dashboard with order counts by status, revenue totals, and a product-wise breakdown. Defaults to today.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary_date": map[string]any{"type": "string", "description": "YYYY-MM-DD, defaults to today"},
			},
		},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			scope, err := ts.scope(toolCtx, args)
			if err != nil {
				return nil, err
			}
			if scope.Role != query.RoleAdmin {
				return adminOnlySummary, nil
			}

			dateCond := "date(order_date) = date('now', 'localtime')"
			var dateArgs []any
			if d := argString(args, "summary_date"); d != "" {
				dateCond = "date(order_date) = ?"
				dateArgs = []any{d}
			}

			totals, err := ts.runner.RunOne(toolCtx, query.Query{
				SQL: `SELECT COUNT(*) AS total_orders,
       SUM(CASE WHEN order_status = 3 THEN 1 ELSE 0 END) AS approved,
       SUM(CASE WHEN order_status = 4 THEN 1 ELSE 0 END) AS delivered,
       SUM(CASE WHEN order_status = 5 THEN 1 ELSE 0 END) AS cancelled,
       SUM(CASE WHEN order_status = 6 THEN 1 ELSE 0 END) AS failed,
       SUM(order_total_amount) AS gross_revenue,
       SUM(CASE WHEN order_status = 4 THEN order_total_amount ELSE 0 END) AS delivered_revenue,
       SUM(CASE WHEN order_status = 5 THEN order_total_amount ELSE 0 END) AS cancelled_revenue
FROM sp_secondary_orders
WHERE ` + dateCond,
				Args: dateArgs,
			})
			if err != nil && err != query.ErrNoRows {
				return nil, err
			}

			prodCond := "date(o.order_date) = date('now', 'localtime')"
			if len(dateArgs) > 0 {
				prodCond = "date(o.order_date) = ?"
			}
			products, err := ts.runner.Run(toolCtx, query.Query{
				SQL: `SELECT d.product_name, d.product_variant_name,
       SUM(d.quantity) AS total_qty,
       SUM(d.quantity_in_ltr) AS total_liters,
       SUM(d.quantity_in_pouch) AS total_pouches,
       SUM(d.amount) AS total_amount
FROM sp_secondary_order_details d
JOIN sp_secondary_orders o ON o.id = d.order_id
WHERE ` + prodCond + `
GROUP BY d.product_name, d.product_variant_name
ORDER BY total_amount DESC`,
				Args: dateArgs,
			})
			if err != nil && err != query.ErrNoRows {
				return nil, err
			}

			return map[string]any{
				"order_summary":     totals,
				"product_breakdown": products,
			}, nil
		},
	)
}

// TopReport generates admin leaderboards over delivered orders.
func (ts *Toolset) TopReport() tool.Tool {
	return tool.NewFunctionTool(
		"get_top_report",
		"Admin only: top-N leaderboard. report_type is one of customers (by revenue), products (by quantity), towns (by revenue). Counts delivered orders only.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"report_type": map[string]any{"type": "string", "description": "customers, products, or towns"},
				"limit":       map[string]any{"type": "integer"},
				"start_date":  map[string]any{"type": "string", "description": "YYYY-MM-DD"},
				"end_date":    map[string]any{"type": "string", "description": "YYYY-MM-DD"},
			},
			"required": []string{"report_type"},
		},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			scope, err := ts.scope(toolCtx, args)
			if err != nil {
				return nil, err
			}
			if scope.Role != query.RoleAdmin {
				return adminOnlyReports, nil
			}

			dateFilter := ""
			var params []any
			if s, e := argString(args, "start_date"), argString(args, "end_date"); s != "" && e != "" {
				dateFilter = " AND date(o.order_date) BETWEEN ? AND ?"
				params = append(params, s, e)
			}
			limit := argInt64(args, "limit")
			if limit <= 0 {
				limit = 10
			}

			var sqlText string
			switch argString(args, "report_type") {
			case "customers":
				sqlText = `SELECT user_id, user_name, COUNT(*) AS total_orders,
       SUM(order_total_amount) AS total_revenue
FROM sp_secondary_orders o
WHERE order_status = 4` + dateFilter + `
GROUP BY user_id, user_name
ORDER BY total_revenue DESC LIMIT ?`
			case "products":
				sqlText = `SELECT d.product_name, d.product_variant_name,
       SUM(d.quantity) AS total_qty,
       SUM(d.quantity_in_ltr) AS total_liters,
       SUM(d.amount) AS total_revenue
FROM sp_secondary_order_details d
JOIN sp_secondary_orders o ON o.id = d.order_id
WHERE o.order_status = 4` + dateFilter + `
GROUP BY d.product_name, d.product_variant_name
ORDER BY total_qty DESC LIMIT ?`
			case "towns":
				sqlText = `SELECT town_name, COUNT(*) AS order_count,
       SUM(order_total_amount) AS total_revenue
FROM sp_secondary_orders o
WHERE order_status = 4` + dateFilter + `
GROUP BY town_name
ORDER BY total_revenue DESC LIMIT ?`
			default:
				return "Unknown report_type. Use customers, products, or towns.", nil
			}
			params = append(params, limit)

			rows, err := ts.runner.Run(toolCtx, query.Query{SQL: sqlText, Args: params})
			if err == query.ErrNoRows {
				return "No delivered orders in the requested period.", nil
			}
			return rows, err
		},
	)
}

// OrderTools returns the full order-department toolset.
func (ts *Toolset) OrderTools() []tool.Tool {
	return []tool.Tool{
		ts.OrdersFiltered(),
		ts.OrderDetails(),
		ts.OrderItems(),
		ts.OutstandingAmount(),
		ts.SubscriptionOrders(),
		ts.CancelledOrderReason(),
		ts.DailySalesSummary(),
		ts.TopReport(),
	}
}

var orderLookupSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"order_id":   map[string]any{"type": "integer"},
		"order_code": map[string]any{"type": "string"},
	},
}

// orderLookup builds a single-order query, pinning customers to their
// own records. A non-empty message means the caller should return it
// as the observation.
func (ts *Toolset) orderLookup(toolCtx *tool.Context, args map[string]any, selectPrefix, suffix string) (query.Query, string, error) {
	scope, err := ts.scope(toolCtx, args)
	if err != nil {
		return query.Query{}, "", err
	}

	var cond string
	var params []any
	switch {
	case argInt64(args, "order_id") != 0:
		cond, params = "id = ?", []any{argInt64(args, "order_id")}
	case argString(args, "order_code") != "":
		cond, params = "order_code = ?", []any{argString(args, "order_code")}
	default:
		return query.Query{}, "Please provide order_id or order_code.", nil
	}
	if scope.Role == query.RoleCustomer {
		cond = "(" + cond + ") AND user_id = ?"
		params = append(params, scope.UserID)
	}

	return query.Query{SQL: selectPrefix + cond + suffix, Args: params}, "", nil
}

func joinAnd(conds []string) string {
	out := conds[0]
	for _, c := range conds[1:] {
		out += " AND " + c
	}
	return out
}

// Argument readers. JSON numbers arrive as float64.

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argBool(args map[string]any, key string) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return false
}

func argBoolPtr(args map[string]any, key string) *bool {
	if v, ok := args[key].(bool); ok {
		return &v
	}
	return nil
}

func argInt64(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	}
	return 0
}

func argIntPtr(args map[string]any, key string) *int {
	if _, ok := args[key]; !ok {
		return nil
	}
	n := int(argInt64(args, key))
	return &n
}

func argFloatPtr(args map[string]any, key string) *float64 {
	if v, ok := args[key].(float64); ok {
		return &v
	}
	return nil
}
