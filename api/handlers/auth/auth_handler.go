package auth

import (
	"backend/internal/auth"
	"backend/internal/common"

	"github.com/gin-gonic/gin"
)

// AuthHandler 令牌签发 Handler
// 平台不维护用户体系，令牌由上游身份系统换发；此处提供换发与刷新端点
type AuthHandler struct {
	jwtService *auth.JWTService
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{jwtService: jwtService}
}

// tokenRequest 令牌签发请求体
type tokenRequest struct {
	UserID   string   `json:"user_id" binding:"required,max=100"`
	UserName string   `json:"user_name" binding:"max=100"`
	Roles    []string `json:"roles"`
}

// refreshRequest 令牌刷新请求体
type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// IssueToken 签发令牌对
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	pair, err := h.jwtService.GenerateTokenPair(req.UserID, req.UserName, req.Roles)
	if err != nil {
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseSuccess(c, pair)
}

// RefreshToken 刷新访问令牌
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	pair, err := h.jwtService.RefreshAccessToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		common.ResponseUnauthorized(c, err.Error())
		return
	}

	common.ResponseSuccess(c, pair)
}

// Logout 注销当前令牌（加入黑名单）
func (h *AuthHandler) Logout(c *gin.Context) {
	token := auth.ExtractTokenFromBearer(c.GetHeader("Authorization"))
	if token == "" {
		common.ResponseBadRequest(c, "缺少认证令牌")
		return
	}

	if err := h.jwtService.InvalidateToken(c.Request.Context(), token); err != nil {
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseSuccessMessage(c, "已注销", nil)
}
