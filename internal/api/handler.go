package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Services groups what the handlers call into.
type Services struct {
	Auth     *service.AuthService
	Products *service.ProductService
	Users    *service.UserService
	Orders   *service.OrderService
	Stats    *service.StatsService
}

// Handler contains HTTP handlers
type Handler struct {
	svc          Services
	checks       map[string]ReadinessCheck
	uploadDir    string
	uploadPrefix string
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler. Files in uploadDir are served
// under uploadPrefix when uploadDir is set.
func NewHandler(svc Services, checks map[string]ReadinessCheck, uploadDir, uploadPrefix string) *Handler {
	return &Handler{
		svc:          svc,
		checks:       checks,
		uploadDir:    uploadDir,
		uploadPrefix: uploadPrefix,
		logger:       util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if h.uploadDir != "" {
		router.Static(h.uploadPrefix, h.uploadDir)
	}

	api := router.Group("/api")
	{
		api.GET("/products", h.listProducts)
		api.GET("/products/:id", h.getProduct)

		api.POST("/auth/signup", h.signup)
		api.POST("/auth/login", h.login)

		api.POST("/orders", h.createOrder)
	}

	authed := api.Group("", h.requireAuth())
	{
		authed.GET("/auth/me", h.me)
		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/:id", h.getOrder)
	}

	admin := api.Group("/admin", h.requireAdmin())
	{
		admin.GET("/stats", h.getStats)

		admin.GET("/products", h.adminListProducts)
		admin.GET("/products/:id", h.adminGetProduct)
		admin.POST("/products", h.createProduct)
		admin.PUT("/products/:id", h.updateProduct)
		admin.DELETE("/products/:id", h.deleteProduct)

		admin.GET("/users", h.listUsers)
		admin.GET("/users/:id", h.getUser)
		admin.PUT("/users/:id", h.updateUser)
		admin.DELETE("/users/:id", h.deleteUser)

		admin.GET("/orders", h.listOrders)
		admin.GET("/orders/:id", h.getOrder)
		admin.PUT("/orders/:id", h.updateOrder)
		admin.DELETE("/orders/:id", h.deleteOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck runs every registered dependency check
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// respondError maps service errors onto the HTTP error taxonomy.
func (h *Handler) respondError(c *gin.Context, err error) {
	status, summary := http.StatusInternalServerError, "Internal server error"
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		status, summary = http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, service.ErrUnauthenticated):
		status, summary = http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, service.ErrForbidden):
		status, summary = http.StatusForbidden, "Access denied"
	case errors.Is(err, service.ErrNotFound):
		status, summary = http.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrValidation):
		status, summary = http.StatusBadRequest, "Invalid request"
	case errors.Is(err, service.ErrInsufficientStock):
		status, summary = http.StatusConflict, "Insufficient stock"
	case errors.Is(err, service.ErrEmailTaken):
		status, summary = http.StatusConflict, "Email already registered"
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":   summary,
		"details": err.Error(),
	})
}

func badRequest(c *gin.Context, summary string, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   summary,
		"details": err.Error(),
	})
}

// paramID parses the :id path parameter.
func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid ID",
			"details": "id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
