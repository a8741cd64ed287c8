package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voiceline-platform/internal/auth"
	"voiceline-platform/internal/httpapi"
	"voiceline-platform/internal/rbac"
	"voiceline-platform/pkg/utils"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
		})

		// PHONE NUMBER routes
		nums := v1.Group("/phone-numbers")
		nums.Use(httpapi.RequireUserAndAnyRole(rbac.RoleOwner, rbac.RoleAgent, rbac.RoleSuperAdmin)...)
		{
			nums.POST("/purchase", h.PurchaseNumber)
			nums.GET("", h.ListNumbers)
			nums.GET("/:id", h.GetNumber)
			nums.POST("/:id/assign", h.AssignNumber)
			nums.POST("/:id/unassign", h.UnassignNumber)
			nums.POST("/:id/dispatch-rule/refresh", h.RefreshDispatchRule)
			nums.POST("/:id/call", h.PlaceOutboundCall)
		}

		// AGENT DISPATCH routes (trial sessions without a dispatch rule)
		v1.POST("/agent-dispatch",
			append(httpapi.RequireUserAndAnyRole(rbac.RoleOwner, rbac.RoleAgent, rbac.RoleSuperAdmin), h.DispatchAgent)...)
	}
}
