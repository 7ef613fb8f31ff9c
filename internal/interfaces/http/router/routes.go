package router

import (
	"github.com/gin-gonic/gin"
	"github.com/inmobiliaria/backend/internal/interfaces/http/handler"
)

// Handlers are the endpoint handlers mounted by Mount
type Handlers struct {
	Payments      *handler.PaymentHandler
	Sales         *handler.SalesHandler
	Simulation    *handler.SimulationHandler
	Refunds       *handler.RefundHandler
	Subscriptions *handler.SubscriptionHandler
	Webhooks      *handler.StripeWebhookHandler
	System        *handler.SystemHandler

	// APIMiddleware runs on every /api/v1 route, WebhookMiddleware on the webhook only
	APIMiddleware     []gin.HandlerFunc
	WebhookMiddleware []gin.HandlerFunc
}

// Mount registers every endpoint on engine. The webhook and health endpoints sit outside
// /api/v1 and carry no auth; the simulators are public; everything else runs behind auth.
func Mount(engine *gin.Engine, h Handlers, auth gin.HandlerFunc) {
	webhook := append(append([]gin.HandlerFunc{}, h.WebhookMiddleware...), h.Webhooks.HandleStripeWebhook)
	engine.POST("/webhooks/stripe", webhook...)
	engine.GET("/health", h.System.Health)

	system := NewDomainGroup("system", "/system").
		GET("/info", h.System.GetSystemInfo).
		GET("/ping", h.System.Ping)

	simulation := NewDomainGroup("simulation", "/simulate").
		POST("/amortization", h.Simulation.SimulateAmortization).
		POST("/commission", h.Simulation.SimulateCommission)

	payments := NewDomainGroup("payments", "/payments").Use(auth).
		POST("/manual", h.Payments.RegisterManualPayment).
		GET("/:id", h.Payments.GetInstallment)

	sales := NewDomainGroup("sales", "/sales").Use(auth).
		POST("", h.Sales.RegisterSale).
		GET("/:id/schedule", h.Sales.GetSchedule)

	refunds := NewDomainGroup("refunds", "/refunds").Use(auth).
		POST("", h.Refunds.RequestRefund).
		GET("", h.Refunds.ListRefunds).
		GET("/:id", h.Refunds.GetRefund).
		POST("/:id/approve", h.Refunds.ApproveRefund).
		POST("/:id/reject", h.Refunds.RejectRefund).
		POST("/:id/retry", h.Refunds.RetryRefund)

	subscriptions := NewDomainGroup("subscriptions", "/subscriptions").Use(auth).
		POST("", h.Subscriptions.StartSubscription).
		GET("/:id", h.Subscriptions.GetSubscription).
		PATCH("/:id", h.Subscriptions.ChangePlan).
		DELETE("/:id", h.Subscriptions.CancelSubscription)

	NewRouter(engine, WithAPIVersion("v1"), WithMiddleware(h.APIMiddleware...)).
		Register(system, simulation, payments, sales, refunds, subscriptions).
		Setup()
}
