package handlers

import (
	"net/http"

	"servicemarket/internal/services"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	auth *services.WalletAuth
}

func NewAuthHandler(auth *services.WalletAuth) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type challengeRequest struct {
	Address string `json:"address" binding:"required"`
}

type solveRequest struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// Challenge - 为钱包地址生成待签名的挑战
func (h *AuthHandler) Challenge(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.auth.Challenge(req.Address)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Solve - 校验签名并签发 bearer token
func (h *AuthHandler) Solve(c *gin.Context) {
	var req solveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.auth.Solve(req.Address, req.Signature)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
