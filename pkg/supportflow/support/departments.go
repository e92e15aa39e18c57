package support

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/supportflow/pkg/supportflow/capability"
	"github.com/randalmurphal/supportflow/pkg/supportflow/query"
	"github.com/randalmurphal/supportflow/pkg/supportflow/tool"
)

// ActiveSubscriptions lists the caller's active subscription plans.
func (ts *Toolset) ActiveSubscriptions() tool.Tool {
	return tool.NewFunctionTool(
		"check_active_subscriptions",
		"List the user's currently active subscription plans.",
		emptySchema,
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			rows, err := ts.runner.Run(toolCtx, query.Query{
				SQL: `SELECT id, product_name, plan_type, status, start_date, end_date, custom_days
FROM sp_subscriptions WHERE user_id = ? AND status = 1`,
				Args: []any{toolCtx.SessionUserID},
			})
			if err == query.ErrNoRows {
				return "No active subscriptions.", nil
			}
			return rows, err
		},
	)
}

// SubscriptionLogs returns the most recent subscription change events.
func (ts *Toolset) SubscriptionLogs() tool.Tool {
	return tool.NewFunctionTool(
		"check_subscription_logs",
		"Recent subscription change history for the user (pauses, plan edits, cancellations).",
		emptySchema,
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			rows, err := ts.runner.Run(toolCtx, query.Query{
				SQL: `SELECT id, action, message, log_time
FROM sp_subscription_logs WHERE user_id = ? ORDER BY id DESC LIMIT 5`,
				Args: []any{toolCtx.SessionUserID},
			})
			if err == query.ErrNoRows {
				return "No subscription activity on record.", nil
			}
			return rows, err
		},
	)
}

// WalletBalance returns the latest wallet ledger entries.
func (ts *Toolset) WalletBalance() tool.Tool {
	return tool.NewFunctionTool(
		"check_wallet_balance",
		"The user's wallet balance and most recent ledger entries.",
		emptySchema,
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			rows, err := ts.runner.Run(toolCtx, query.Query{
				SQL: `SELECT id, particulars, credit, debit, balance, posting_date
FROM sp_user_ledger WHERE user_id = ? ORDER BY id DESC LIMIT 3`,
				Args: []any{toolCtx.SessionUserID},
			})
			if err == query.ErrNoRows {
				return "No wallet activity on record.", nil
			}
			return rows, err
		},
	)
}

// RunningSchemes lists wallet recharge offers currently live.
func (ts *Toolset) RunningSchemes() tool.Tool {
	return tool.NewFunctionTool(
		"get_running_schemes",
		"Wallet recharge schemes and cashback offers currently running.",
		emptySchema,
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			rows, err := ts.runner.Run(toolCtx, query.Query{
				SQL:  "SELECT * FROM sp_wallet_scheme WHERE status = 1 LIMIT 10",
				Args: nil,
			})
			if err == query.ErrNoRows {
				return "No schemes are currently running.", nil
			}
			return rows, err
		},
	)
}

// refundApprovalThreshold is the largest refund a specialist may issue
// without a human sign-off.
const refundApprovalThreshold = 50.0

// InvoiceStatus fetches the status of the caller's last invoice.
func (ts *Toolset) InvoiceStatus() tool.Tool {
	return tool.NewFunctionTool(
		"lookup_invoice_status",
		"Fetch the status of the customer's most recent invoice.",
		emptySchema,
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			row, err := ts.runner.RunOne(toolCtx, query.Query{
				SQL: `SELECT id, invoice_code, amount, status, due_date
FROM sp_invoices WHERE user_id = ? ORDER BY id DESC LIMIT 1`,
				Args: []any{toolCtx.SessionUserID},
			})
			if err == query.ErrNoRows {
				return "No invoices found for this account. Ask for clarification.", nil
			}
			return row, err
		},
	)
}

// RefundRequest initiates a refund, bouncing large amounts to a human.
func (ts *Toolset) RefundRequest() tool.Tool {
	return tool.NewFunctionTool(
		"process_refund_request",
		"Initiate a refund to the customer's wallet. Amounts over the approval threshold require a human agent.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"amount": map[string]any{"type": "number", "description": "Refund amount"},
				"reason": map[string]any{"type": "string"},
			},
			"required": []string{"amount"},
		},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			amount, _ := args["amount"].(float64)
			if amount <= 0 {
				return "Refund amount must be positive.", nil
			}
			if amount > refundApprovalThreshold {
				return fmt.Sprintf("Refunds over $%.2f require manager approval. Escalate to a human agent.", refundApprovalThreshold), nil
			}
			_, err := ts.runner.RunOne(toolCtx, query.Query{
				SQL: `INSERT INTO sp_user_ledger (user_id, particulars, credit, posting_date)
VALUES (?, ?, ?, date('now', 'localtime'))
RETURNING id`,
				Args: []any{toolCtx.SessionUserID, "refund: " + argString(args, "reason"), amount},
			})
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Success: $%.2f refunded to the customer's wallet.", amount), nil
		},
	)
}

// ServerStatus checks service health for a region.
func (ts *Toolset) ServerStatus() tool.Tool {
	return tool.NewFunctionTool(
		"check_server_uptime",
		"Check service health for a region (e.g. us-east, eu-west).",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"region": map[string]any{"type": "string"},
			},
			"required": []string{"region"},
		},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			region := argString(args, "region")
			row, err := ts.runner.RunOne(toolCtx, query.Query{
				SQL:  "SELECT region, healthy, uptime_pct, checked_at FROM sp_service_health WHERE region = ?",
				Args: []any{region},
			})
			if err == query.ErrNoRows {
				return fmt.Sprintf("Unknown region %q.", region), nil
			}
			if err != nil {
				return nil, err
			}
			if healthy := argInt64(row, "healthy"); healthy == 0 {
				return fmt.Sprintf("CRITICAL: %s is DOWN.", region), nil
			}
			return fmt.Sprintf("OK: %s is healthy. Uptime %v%%.", region, row["uptime_pct"]), nil
		},
	)
}

// PasswordReset sends a reset link to the given address.
func (ts *Toolset) PasswordReset() tool.Tool {
	return tool.NewFunctionTool(
		"force_password_reset",
		"Send a password reset link to the provided email address.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"email": map[string]any{"type": "string"},
			},
			"required": []string{"email"},
		},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			email := argString(args, "email")
			if !strings.Contains(email, "@") {
				return "Invalid email format.", nil
			}
			_, err := ts.runner.RunOne(toolCtx, query.Query{
				SQL: `INSERT INTO sp_password_resets (user_id, email, requested_at)
VALUES (?, ?, datetime('now'))
RETURNING id`,
				Args: []any{toolCtx.SessionUserID, email},
			})
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Reset link sent to %s. Tell the user to check their spam folder.", email), nil
		},
	)
}

// FAQSearch wraps the document-similarity capability as an
// allow-listed tool.
func FAQSearch(searcher capability.Searcher) tool.Tool {
	return tool.NewFunctionTool(
		"company_faq_search",
		"Search the company policy and FAQ documents.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "What to look up"},
			},
			"required": []string{"query"},
		},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			passages, err := searcher.Search(toolCtx, argString(args, "query"), 3)
			if err != nil {
				return nil, err
			}
			if len(passages) == 0 {
				return "No relevant policy documents found.", nil
			}
			var b strings.Builder
			for i, p := range passages {
				if i > 0 {
					b.WriteString("\n\n")
				}
				b.WriteString(p.Text)
			}
			return b.String(), nil
		},
	)
}

var emptySchema = map[string]any{
	"type":       "object",
	"properties": map[string]any{},
}
