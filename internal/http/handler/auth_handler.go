package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/majidsafwaan2/gymguard/internal/authz"
	"github.com/majidsafwaan2/gymguard/internal/consent"
	"github.com/majidsafwaan2/gymguard/internal/domain"
	"github.com/majidsafwaan2/gymguard/internal/http/middleware"
	"github.com/majidsafwaan2/gymguard/internal/service"
)

// AuthHandler exposes registration, login, and account lifecycle endpoints.
type AuthHandler struct {
	Auth   *service.AuthService
	Policy consent.Policy
	Logger *zap.Logger
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService, policy consent.Policy, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{Auth: auth, Policy: policy, Logger: logger}
}

type deviceRequest struct {
	Platform   string `json:"platform"`
	Model      string `json:"model"`
	AppVersion string `json:"app_version"`
}

func (d deviceRequest) toDomain() domain.DeviceInfo {
	return domain.DeviceInfo{Platform: d.Platform, Model: d.Model, AppVersion: d.AppVersion}
}

// Register handles password signup.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email       string        `json:"email" binding:"required"`
		Password    string        `json:"password" binding:"required"`
		FirstName   string        `json:"first_name" binding:"required"`
		LastName    string        `json:"last_name" binding:"required"`
		Category    string        `json:"category" binding:"required"`
		DateOfBirth string        `json:"date_of_birth" binding:"required"`
		GuardianIDs []int64       `json:"guardian_ids"`
		Device      deviceRequest `json:"device"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Malformed registration payload."})
		return
	}

	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "date_of_birth must be YYYY-MM-DD."})
		return
	}

	identity, err := h.Auth.Register(c.Request.Context(), service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Category:    domain.Category(req.Category),
		DateOfBirth: dob,
		GuardianIDs: req.GuardianIDs,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.identityResponse(identity))
}

// Login handles password authentication.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string        `json:"email" binding:"required"`
		Password string        `json:"password" binding:"required"`
		Device   deviceRequest `json:"device"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Malformed login payload."})
		return
	}

	resp, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password, req.Device.toDomain(), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Federated exchanges an identity-provider token for local tokens.
func (h *AuthHandler) Federated(c *gin.Context) {
	var req struct {
		IDToken string        `json:"id_token" binding:"required"`
		Device  deviceRequest `json:"device"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Malformed federated payload."})
		return
	}

	resp, denial, err := h.Auth.FederatedExchange(c.Request.Context(), req.IDToken, req.Device.toDomain(), c.ClientIP(), c.Request.UserAgent())
	if denial != nil {
		respondDenial(c, denial)
		return
	}
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Refresh rotates the access token for a live session.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
		SessionToken string `json:"session_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Malformed refresh payload."})
		return
	}

	resp, denial, err := h.Auth.Refresh(c.Request.Context(), req.RefreshToken, req.SessionToken)
	if denial != nil {
		respondDenial(c, denial)
		return
	}
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Logout revokes the presented session.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		SessionToken string `json:"session_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Malformed logout payload."})
		return
	}
	if err := h.Auth.Logout(c.Request.Context(), req.SessionToken); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me returns the authorized identity's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	authzCtx, ok := middleware.GetAuthzContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Missing authorization context."})
		return
	}
	c.JSON(http.StatusOK, h.identityResponse(authzCtx.Identity))
}

// GrantConsent records guardian consent for a linked minor.
func (h *AuthHandler) GrantConsent(c *gin.Context) {
	authzCtx, ok := middleware.GetAuthzContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Missing authorization context."})
		return
	}

	var req struct {
		MinorID string `json:"minor_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Malformed consent payload."})
		return
	}
	minorID, err := strconv.ParseInt(req.MinorID, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "minor_id must be numeric."})
		return
	}

	if err := h.Auth.GrantConsent(c.Request.Context(), authzCtx.Identity, minorID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Sessions lists the caller's sessions.
func (h *AuthHandler) Sessions(c *gin.Context) {
	authzCtx, ok := middleware.GetAuthzContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Missing authorization context."})
		return
	}

	sessions, err := h.Auth.Sessions(c.Request.Context(), authzCtx.Identity.ID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, gin.H{
			"id":            strconv.FormatInt(s.ID, 10),
			"device":        s.Device,
			"ip_address":    s.IPAddress,
			"active":        s.Active,
			"created_at":    s.CreatedAt,
			"expires_at":    s.ExpiresAt,
			"last_activity": s.LastActivity,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// Activity reports the caller's recent activity summary. The route sits
// behind the minor-protected gate because activity data is shared with
// linked coaches and guardians.
func (h *AuthHandler) Activity(c *gin.Context) {
	authzCtx, ok := middleware.GetAuthzContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Missing authorization context."})
		return
	}

	sessions, err := h.Auth.Sessions(c.Request.Context(), authzCtx.Identity.ID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	active := 0
	var lastActivity time.Time
	for _, s := range sessions {
		if s.Active {
			active++
		}
		if s.LastActivity.After(lastActivity) {
			lastActivity = s.LastActivity
		}
	}

	resp := gin.H{
		"identity_id":     strconv.FormatInt(authzCtx.Identity.ID, 10),
		"active_sessions": active,
		"total_sessions":  len(sessions),
	}
	if !lastActivity.IsZero() {
		resp["last_activity"] = lastActivity
	}
	if !authzCtx.Identity.LastActiveAt.IsZero() {
		resp["last_active_at"] = authzCtx.Identity.LastActiveAt
	}
	c.JSON(http.StatusOK, resp)
}

// Deactivate soft-deactivates the caller's account and revokes all its
// sessions.
func (h *AuthHandler) Deactivate(c *gin.Context) {
	authzCtx, ok := middleware.GetAuthzContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Missing authorization context."})
		return
	}

	if err := h.Auth.Deactivate(c.Request.Context(), authzCtx.Identity.ID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) identityResponse(identity domain.Identity) gin.H {
	now := time.Now().UTC()
	resp := gin.H{
		"id":              strconv.FormatInt(identity.ID, 10),
		"email":           identity.Email,
		"first_name":      identity.FirstName,
		"last_name":       identity.LastName,
		"category":        identity.Category,
		"date_of_birth":   identity.DateOfBirth.Format("2006-01-02"),
		"age":             consent.Age(identity.DateOfBirth, now),
		"active":          identity.Active,
		"consent_granted": identity.Consent.Granted,
		"created_at":      identity.CreatedAt,
	}
	if identity.Consent.GuardianID != 0 {
		resp["consent_guardian_id"] = strconv.FormatInt(identity.Consent.GuardianID, 10)
	}
	resp["consent_required"] = h.Policy.RequiresConsent(identity)
	return resp
}

func (h *AuthHandler) respondServiceError(c *gin.Context, err error) {
	if authErr, ok := err.(*service.AuthError); ok {
		c.JSON(authErr.Status, gin.H{"error": authErr.Code, "error_description": authErr.Description})
		return
	}
	if h.Logger != nil {
		h.Logger.Error("handler failure", zap.Error(err))
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal error."})
}

func respondDenial(c *gin.Context, denial *authz.Denial) {
	code, desc := denial.Public()
	c.JSON(denial.Status(), gin.H{"error": code, "error_description": desc})
}
