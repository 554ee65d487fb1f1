package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/billing_go_server/config"
	"github.com/qs3c/billing_go_server/internal/api/handler"
	"github.com/qs3c/billing_go_server/internal/api/middleware"
	"github.com/qs3c/billing_go_server/internal/service"
)

// PremiumSubscription 访问 /billing/premium 需要的订阅名
const PremiumSubscription = "main"

type Router struct {
	authHandler         *handler.AuthHandler
	billingHandler      *handler.BillingHandler
	subscriptionHandler *handler.SubscriptionHandler
	webhookHandler      *handler.WebhookHandler
	subService          *service.SubscriptionService
	cfg                 *config.Config
	logger              *zap.Logger
}

func NewRouter(
	authHandler *handler.AuthHandler,
	billingHandler *handler.BillingHandler,
	subscriptionHandler *handler.SubscriptionHandler,
	webhookHandler *handler.WebhookHandler,
	subService *service.SubscriptionService,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		authHandler:         authHandler,
		billingHandler:      billingHandler,
		subscriptionHandler: subscriptionHandler,
		webhookHandler:      webhookHandler,
		subService:          subService,
		cfg:                 cfg,
		logger:              logger,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery(r.logger))
	engine.Use(middleware.Logger(r.logger))
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
		}

		// Stripe 回调，靠签名校验
		api.POST("/webhooks/stripe", r.webhookHandler.Stripe)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			billing := authenticated.Group("/billing")
			{
				billing.GET("/status", r.billingHandler.Status)
				billing.POST("/customer", r.billingHandler.CreateCustomer)
				billing.PUT("/card", r.billingHandler.UpdateCard)
				billing.POST("/coupon", r.billingHandler.ApplyCoupon)
				billing.GET("/invoices", r.billingHandler.Invoices)
				billing.POST("/invoices", r.billingHandler.InvoiceFor)
				billing.POST("/refunds", r.billingHandler.Refund)
				billing.GET("/premium",
					middleware.Subscribed(r.subService, PremiumSubscription, ""),
					r.billingHandler.Premium)
			}

			subs := authenticated.Group("/subscriptions")
			{
				subs.GET("", r.subscriptionHandler.List)
				subs.POST("", r.subscriptionHandler.Create)
				subs.GET("/:name", r.subscriptionHandler.Get)
				subs.PUT("/:name/plan", r.subscriptionHandler.Swap)
				subs.PUT("/:name/quantity", r.subscriptionHandler.UpdateQuantity)
				subs.POST("/:name/increment", r.subscriptionHandler.Increment)
				subs.POST("/:name/decrement", r.subscriptionHandler.Decrement)
				subs.POST("/:name/cancel", r.subscriptionHandler.Cancel)
				subs.POST("/:name/resume", r.subscriptionHandler.Resume)
			}
		}
	}

	return engine
}
