package handlers

import (
	"errors"
	"net/http"
	"strings"

	"servicemarket/internal/db"
	"servicemarket/internal/models"
	"servicemarket/internal/utils"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	store db.Store
}

func NewUserHandler(store db.Store) *UserHandler {
	return &UserHandler{store: store}
}

type userRequest struct {
	Address  string  `json:"address"`
	Username string  `json:"username" binding:"required"`
	Bio      *string `json:"bio"`
	Email    *string `json:"email"`
	Link     *string `json:"link"`
}

// List - GET /users，按 username / address 过滤
func (h *UserHandler) List(c *gin.Context) {
	filter := db.UserFilter{
		Username: strings.TrimSpace(c.Query("username")),
		Address:  utils.NormalizeAddress(c.Query("address")),
	}
	users, err := h.store.ListUserInfos(c.Request.Context(), filter, pageFromQuery(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// Get - GET /users/:address
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.store.GetUserInfo(c.Request.Context(), utils.NormalizeAddress(c.Param("address")))
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no user found"})
		return
	}
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Put - PUT /users 只能修改自己钱包地址对应的资料
func (h *UserHandler) Put(c *gin.Context) {
	caller, ok := currentWallet(c)
	if !ok {
		return
	}
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	address := utils.NormalizeAddress(req.Address)
	if address == "" {
		address = caller
	}
	if address != caller {
		c.JSON(http.StatusForbidden, gin.H{"error": "address does not match the authenticated wallet"})
		return
	}
	username := utils.SanitizeText(req.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is empty"})
		return
	}

	ctx := c.Request.Context()
	user := &models.UserInfo{
		Address:  address,
		Username: username,
		Bio:      req.Bio,
		Email:    req.Email,
		Link:     req.Link,
	}
	status := http.StatusCreated
	existing, err := h.store.GetUserInfo(ctx, address)
	switch {
	case err == nil:
		user.CreatedAt = existing.CreatedAt
		status = http.StatusOK
	case !errors.Is(err, db.ErrNotFound):
		RespondError(c, err)
		return
	}

	if err := h.store.SaveUserInfo(ctx, user); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(status, user)
}

// Permissions - GET /users/:address/permissions
func (h *UserHandler) Permissions(c *gin.Context) {
	filter := db.PermissionFilter{UserAddress: utils.NormalizeAddress(c.Param("address"))}
	perms, err := h.store.ListPermissions(c.Request.Context(), filter, pageFromQuery(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, perms)
}
