package handlers

import (
	"errors"
	"net/http"
	"strings"

	"servicemarket/internal/db"
	"servicemarket/internal/models"
	"servicemarket/internal/services"
	"servicemarket/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type ServiceHandler struct {
	store   db.Store
	granter *services.PermissionGranter
	log     logrus.FieldLogger
}

func NewServiceHandler(store db.Store, granter *services.PermissionGranter, log logrus.FieldLogger) *ServiceHandler {
	return &ServiceHandler{store: store, granter: granter, log: log.WithField("component", "service_handler")}
}

type uploadServiceRequest struct {
	ID           *string         `json:"id"`
	Name         string          `json:"name" binding:"required"`
	Description  string          `json:"description"`
	URL          string          `json:"url" binding:"required"`
	ImageURL     *string         `json:"image_url"`
	Price        decimal.Decimal `json:"price"`
	OwnerAddress string          `json:"owner_address"`
	Tags         []string        `json:"tags"`
}

type grantRequest struct {
	TxHash string `json:"tx_hash" binding:"required"`
}

// render 填充响应专用字段
func render(s *models.Service) *models.Service {
	if s.Tags == nil {
		s.Tags = []string{}
	}
	s.DescriptionHTML = utils.RenderMarkdown(s.Description)
	return s
}

// List - GET /services，支持 by (所有者) 与 view_as (权限状态)
func (h *ServiceHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	owner := utils.NormalizeAddress(c.Query("by"))

	list, err := h.store.ListServices(ctx, owner, pageFromQuery(c))
	if err != nil {
		RespondError(c, err)
		return
	}

	var permitted map[string]bool
	if viewAs := utils.NormalizeAddress(c.Query("view_as")); viewAs != "" {
		permitted, err = h.permittedServices(c, viewAs)
		if err != nil {
			RespondError(c, err)
			return
		}
	}

	out := make([]*models.Service, 0, len(list))
	for i := range list {
		s := render(&list[i])
		if permitted != nil {
			ok := permitted[s.ID]
			s.Permitted = &ok
		}
		out = append(out, s)
	}
	c.JSON(http.StatusOK, out)
}

// permittedServices collects the ids of every service address may access.
func (h *ServiceHandler) permittedServices(c *gin.Context, address string) (map[string]bool, error) {
	ids := make(map[string]bool)
	page := db.Page{Page: 1, PageSize: db.MaxPageSize}
	for {
		perms, err := h.store.ListPermissions(c.Request.Context(), db.PermissionFilter{UserAddress: address}, page)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			ids[p.ServiceID] = true
		}
		if len(perms) < page.PageSize {
			return ids, nil
		}
		page.Page++
	}
}

// Get - GET /services/:id
func (h *ServiceHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	service, err := h.store.GetService(ctx, c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no service found"})
		return
	}
	if err != nil {
		RespondError(c, err)
		return
	}

	if viewAs := utils.NormalizeAddress(c.Query("view_as")); viewAs != "" {
		_, err := h.store.FindPermission(ctx, viewAs, service.ID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			RespondError(c, err)
			return
		}
		ok := err == nil
		service.Permitted = &ok
	}
	c.JSON(http.StatusOK, render(service))
}

// Upload - PUT /services 创建服务，带 id 时更新已有服务
func (h *ServiceHandler) Upload(c *gin.Context) {
	caller, ok := currentWallet(c)
	if !ok {
		return
	}
	var req uploadServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	owner := utils.NormalizeAddress(req.OwnerAddress)
	if owner == "" {
		owner = caller
	}
	if owner != caller {
		c.JSON(http.StatusForbidden, gin.H{"error": "owner_address does not match the authenticated wallet"})
		return
	}
	if req.Price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must not be negative"})
		return
	}

	service := &models.Service{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		URL:          strings.TrimSpace(req.URL),
		ImageURL:     req.ImageURL,
		Price:        req.Price,
		Tags:         req.Tags,
		OwnerAddress: owner,
	}

	ctx := c.Request.Context()
	if req.ID != nil && *req.ID != "" {
		existing, err := h.store.GetService(ctx, *req.ID)
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no service found"})
			return
		}
		if err != nil {
			RespondError(c, err)
			return
		}
		if existing.OwnerAddress != caller {
			c.JSON(http.StatusForbidden, gin.H{"error": "only the owner can update this service"})
			return
		}
		service.ID = existing.ID
		if err := h.store.UpdateService(ctx, service); err != nil {
			RespondError(c, err)
			return
		}
		updated, err := h.store.GetService(ctx, service.ID)
		if err != nil {
			RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, render(updated))
		return
	}

	if err := h.store.CreateService(ctx, service); err != nil {
		RespondError(c, err)
		return
	}
	h.log.WithFields(logrus.Fields{"service_id": service.ID, "owner": owner}).Info("service created")
	c.JSON(http.StatusCreated, render(service))
}

// Permissions - GET /services/:id/permissions
func (h *ServiceHandler) Permissions(c *gin.Context) {
	perms, err := h.store.ListPermissions(c.Request.Context(), db.PermissionFilter{ServiceID: c.Param("id")}, pageFromQuery(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, perms)
}

// Grant - POST /services/:id/payments 用链上支付兑换访问权限
func (h *ServiceHandler) Grant(c *gin.Context) {
	claimant, ok := currentWallet(c)
	if !ok {
		return
	}
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	service, permission, payment, err := h.granter.GrantForPayment(c.Request.Context(), c.Param("id"), req.TxHash, claimant)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"service":    render(service),
		"permission": permission,
		"payment":    payment,
	})
}
