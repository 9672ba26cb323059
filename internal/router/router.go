package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/bhadresh-123/phicore/internal/handler"
	membershipHandler "github.com/bhadresh-123/phicore/internal/handler/membership"
	resourceHandler "github.com/bhadresh-123/phicore/internal/handler/resource"
	"github.com/bhadresh-123/phicore/internal/middleware"
)

type Deps struct {
	Health     *handler.HealthHandler
	Resource   *resourceHandler.Handler
	Membership *membershipHandler.Handler
	Auth       *middleware.AuthMiddleware
}

func New(deps Deps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  rate.Limit(100),
		Burst: 200,
	})
	r.Use(limiter.RateLimit())

	r.GET("/health", deps.Health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(deps.Auth.Authenticate())
	deps.Resource.RegisterRoutes(v1)
	deps.Membership.RegisterRoutes(v1)

	return r
}
