package handlers

import (
	"net/http"

	"servicemarket/internal/db"
	"servicemarket/internal/models"
	"servicemarket/internal/utils"

	"github.com/gin-gonic/gin"
)

type CommentHandler struct {
	store db.Store
}

func NewCommentHandler(store db.Store) *CommentHandler {
	return &CommentHandler{store: store}
}

type commentRequest struct {
	Comment string `json:"comment" binding:"required"`
}

// List - GET /services/:id/comments
func (h *CommentHandler) List(c *gin.Context) {
	comments, err := h.store.ListComments(c.Request.Context(), c.Param("id"), pageFromQuery(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

// Create - POST /services/:id/comments
func (h *CommentHandler) Create(c *gin.Context) {
	author, ok := currentWallet(c)
	if !ok {
		return
	}
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text := utils.SanitizeText(req.Comment)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment is empty"})
		return
	}

	comment := &models.Comment{
		ServiceID:   c.Param("id"),
		UserAddress: author,
		Comment:     text,
	}
	if err := h.store.CreateComment(c.Request.Context(), comment); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}
