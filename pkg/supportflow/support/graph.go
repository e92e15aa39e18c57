package support

import (
	"log/slog"

	"github.com/randalmurphal/supportflow/pkg/supportflow"
	"github.com/randalmurphal/supportflow/pkg/supportflow/capability"
	"github.com/randalmurphal/supportflow/pkg/supportflow/observability"
	"github.com/randalmurphal/supportflow/pkg/supportflow/stage"
	"github.com/randalmurphal/supportflow/pkg/supportflow/tool"
)

// Stage names in the support graph.
const (
	StageRouter       = "router"
	StageGeneral      = "general"
	StageBilling      = "billing"
	StageTechnical    = "technical"
	StageOrders       = "orders"
	StageSubscription = "subscription"
	StageWallet       = "wallet"
	StageEscalation   = "human_escalation"
)

// Categories is the closed routing vocabulary given to the router.
func Categories() []string {
	return []string{"general", "billing", "technical", "orders", "subscription", "wallet", "escalate"}
}

// Department prompts.
const (
	generalInstructions = "You are a friendly general support agent. Answer politely and concisely. Use the FAQ search tool for questions about company policy."

	billingInstructions = "You are a Billing Agent. Solve the customer's payment issues using your tools. Check invoice status before promising anything. Refunds above the approval threshold must be referred to a human agent."

	technicalInstructions = "You are a Technical Support Agent. Diagnose server and login issues with your tools. Confirm a region before checking uptime, and verify the email address before forcing a password reset."

	ordersInstructions = `You are an Order Support Agent for a dairy delivery service.
Use get_orders_filtered for all order list questions; combine status, date,
location, and flag filters in one call. Status codes: 3=Approved, 4=Delivered,
5=Cancelled, 6=Failed. Location filters and other users' data are admin only;
customer access is resolved automatically, never ask the user for their role.`

	subscriptionInstructions = "You are a Subscription Support Agent. Use your tools to inspect the customer's plans and recent subscription changes before answering. For delivered or failed subscription orders, use the order tools."

	walletInstructions = "You are a Wallet Support Agent. Check the customer's ledger before answering balance questions, and mention running recharge schemes when relevant."
)

// GraphConfig carries the capabilities and tools the support graph is
// built from.
type GraphConfig struct {
	// Classifier drives routing decisions.
	Classifier capability.Classifier

	// Completer drives specialist and escalation completions.
	Completer capability.Completer

	// Toolset provides the order-database tools.
	Toolset *Toolset

	// Searcher backs the FAQ tool. Optional; when nil the general
	// department runs without document search.
	Searcher capability.Searcher

	// Logger and Metrics are passed through to the stages. Optional.
	Logger  *slog.Logger
	Metrics observability.MetricsRecorder

	// RecentWindow and MaxToolIterations override specialist bounds
	// when positive.
	RecentWindow      int
	MaxToolIterations int
}

// BuildGraph assembles the support-desk stage graph: router entry,
// one specialist per department, and the human escalation interrupt.
func BuildGraph(cfg GraphConfig) (*supportflow.CompiledGraph, error) {
	ts := cfg.Toolset

	var opts []stage.SpecialistOption
	if cfg.Logger != nil {
		opts = append(opts, stage.WithSpecialistLogger(cfg.Logger))
	}
	if cfg.Metrics != nil {
		opts = append(opts, stage.WithSpecialistMetrics(cfg.Metrics))
	}
	if cfg.RecentWindow > 0 {
		opts = append(opts, stage.WithRecentWindow(cfg.RecentWindow))
	}
	if cfg.MaxToolIterations > 0 {
		opts = append(opts, stage.WithMaxIterations(cfg.MaxToolIterations))
	}

	var generalTools []tool.Tool
	if cfg.Searcher != nil {
		generalTools = append(generalTools, FAQSearch(cfg.Searcher))
	}

	router := stage.NewClassifier(StageRouter, cfg.Classifier, Categories())
	departments := []*stage.Specialist{
		stage.NewSpecialist(StageGeneral, generalInstructions, cfg.Completer, generalTools, opts...),
		stage.NewSpecialist(StageBilling, billingInstructions, cfg.Completer,
			[]tool.Tool{ts.InvoiceStatus(), ts.RefundRequest(), ts.OutstandingAmount()}, opts...),
		stage.NewSpecialist(StageTechnical, technicalInstructions, cfg.Completer,
			[]tool.Tool{ts.ServerStatus(), ts.PasswordReset()}, opts...),
		stage.NewSpecialist(StageOrders, ordersInstructions, cfg.Completer, ts.OrderTools(), opts...),
		stage.NewSpecialist(StageSubscription, subscriptionInstructions, cfg.Completer,
			[]tool.Tool{ts.ActiveSubscriptions(), ts.SubscriptionLogs(), ts.SubscriptionOrders()}, opts...),
		stage.NewSpecialist(StageWallet, walletInstructions, cfg.Completer,
			[]tool.Tool{ts.WalletBalance(), ts.RunningSchemes(), ts.OutstandingAmount()}, opts...),
	}
	escalation := stage.NewEscalation(StageEscalation, cfg.Completer)

	routes := map[string]string{
		"general":      StageGeneral,
		"billing":      StageBilling,
		"technical":    StageTechnical,
		"orders":       StageOrders,
		"subscription": StageSubscription,
		"wallet":       StageWallet,
		"escalate":     StageEscalation,
	}

	g := supportflow.NewGraph()
	g.AddStage(router, stage.RouteByCategory(StageEscalation, routes, StageGeneral))
	for _, dept := range departments {
		g.AddStage(dept, supportflow.TransitionTo(supportflow.End))
	}
	g.AddStage(escalation, supportflow.TransitionTo(StageEscalation))
	g.SetEntry(StageRouter)

	return g.Compile()
}
