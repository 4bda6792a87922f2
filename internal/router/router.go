package router

import (
	"context"
	"net/http"

	"eastleigh-be/internal/logger"
	"eastleigh-be/internal/middleware"
	"eastleigh-be/internal/payment/api"
	"eastleigh-be/internal/payment/webhook"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CallbackPath is the M-Pesa STK callback route. Pass it to
// middleware.NewRateLimiter so it gets the callback tier.
const CallbackPath = "/payments/mpesa/callback"

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Payments  *api.Handler
	Webhook   *webhook.Handler
	Limiter   *middleware.RateLimiter
	JWTSecret []byte
	DB        Pinger
	Gatherer  prometheus.Gatherer
}

// New builds the HTTP surface. The gateway callback is rate limited only;
// status reads need a valid access token.
func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.RequestID(), logger.Requests())

	r.GET("/healthz", func(c *gin.Context) {
		if err := d.DB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	limit := middleware.GinAdapter(d.Limiter.Middleware)
	r.POST(CallbackPath, limit, d.Webhook.MpesaCallback)

	payments := r.Group("/payments")

	// Auth precedes the limiter: authenticated callers are keyed by user id.
	clients := payments.Group("", middleware.GinAdapter(middleware.Auth(d.JWTSecret)), limit)
	clients.POST("/stkPush", d.Payments.StkPush)
	clients.POST("/evcPlus", d.Payments.EvcPlus)

	authed := clients.Group("", middleware.GinAdapter(middleware.RequireAuth))
	authed.GET("/status/:transactionId", d.Payments.Status)
	authed.GET("/property/:propertyId", d.Payments.ByProperty)

	return r
}
