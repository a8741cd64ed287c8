package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voiceline-platform/internal/auth"
	"voiceline-platform/internal/provisioning"
	"voiceline-platform/internal/rbac"
	"voiceline-platform/internal/telnyx"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth         *auth.Manager
	Provisioning *provisioning.Service
}

// writeError maps orchestrator errors onto the HTTP surface.
//
// Provider business-rule rejections become 422 with the remediation kind and
// the raw provider code preserved for operator debugging. Transport failures
// to either external platform become 502 (retry later).
func writeError(c *gin.Context, err error) {
	var apiErr *telnyx.APIError
	switch {
	case errors.Is(err, provisioning.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, provisioning.ErrNumberUnavailable):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "number is not available from the provider, choose a different number"})
	case errors.Is(err, provisioning.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, provisioning.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, provisioning.ErrBusy):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "another operation is in progress for this number"})
	case errors.Is(err, provisioning.ErrRemoteUnavailable):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "upstream platform unavailable, retry later"})
	case errors.Is(err, provisioning.ErrInconsistent):
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "provisioning partially completed, retry the operation"})
	case errors.As(err, &apiErr):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error":         apiErr.Detail,
			"kind":          string(apiErr.Kind()),
			"provider_code": apiErr.Code,
		})
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func callerID(c *gin.Context) (string, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil || uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return "", false
	}
	return uid, true
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Phone numbers ---

type purchaseRequest struct {
	PhoneNumber string `json:"phone_number"`

	// ProjectID, when set, assigns the number right after purchase.
	ProjectID string `json:"project_id,omitempty"`
}

func (h Handlers) PurchaseNumber(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	n, err := h.Provisioning.Purchase(c.Request.Context(), userID, req.PhoneNumber)
	if err != nil {
		writeError(c, err)
		return
	}
	if req.ProjectID != "" {
		res, err := h.Provisioning.Assign(c.Request.Context(), userID, n.ID, req.ProjectID)
		if err != nil {
			// The number is owned either way; report the partial outcome.
			c.JSON(http.StatusCreated, gin.H{"phone_number": n, "assign_error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, res)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (h Handlers) ListNumbers(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	if projectID := c.Query("project_id"); projectID != "" {
		ns, err := h.Provisioning.ListProjectNumbers(c.Request.Context(), userID, projectID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"phone_numbers": ns})
		return
	}
	ns, err := h.Provisioning.ListNumbers(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"phone_numbers": ns})
}

func (h Handlers) GetNumber(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	n, err := h.Provisioning.GetNumber(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

type projectRequest struct {
	ProjectID string `json:"project_id"`
}

func (h Handlers) AssignNumber(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProjectID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "project_id required"})
		return
	}
	res, err := h.Provisioning.Assign(c.Request.Context(), userID, c.Param("id"), req.ProjectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) UnassignNumber(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProjectID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "project_id required"})
		return
	}
	res, err := h.Provisioning.Unassign(c.Request.Context(), userID, c.Param("id"), req.ProjectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) RefreshDispatchRule(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProjectID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "project_id required"})
		return
	}
	ruleID, err := h.Provisioning.RefreshDispatchRule(c.Request.Context(), userID, c.Param("id"), req.ProjectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispatch_rule_id": ruleID})
}

type outboundCallRequest struct {
	ProjectID string `json:"project_id"`
	ToNumber  string `json:"to_number"`
}

func (h Handlers) PlaceOutboundCall(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req outboundCallRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProjectID == "" || req.ToNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "project_id, to_number required"})
		return
	}
	res, err := h.Provisioning.PlaceOutboundCall(c.Request.Context(), userID, c.Param("id"), req.ProjectID, req.ToNumber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type agentDispatchRequest struct {
	ProjectID string `json:"project_id"`
	RoomName  string `json:"room_name"`
}

// DispatchAgent attaches an agent to a room for a trial session.
func (h Handlers) DispatchAgent(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req agentDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProjectID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "project_id required"})
		return
	}
	res, err := h.Provisioning.DispatchTrialAgent(c.Request.Context(), userID, req.ProjectID, req.RoomName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Convenience middleware bundles.

func RequireUserAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireUser(), rbac.RequireAnyRole(roles...)}
}
