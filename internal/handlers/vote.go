package handlers

import (
	"errors"
	"net/http"

	"servicemarket/internal/db"
	"servicemarket/internal/models"
	"servicemarket/internal/services"

	"github.com/gin-gonic/gin"
)

type VoteHandler struct {
	store  db.Store
	ledger *services.VoteLedger
}

func NewVoteHandler(store db.Store, ledger *services.VoteLedger) *VoteHandler {
	return &VoteHandler{store: store, ledger: ledger}
}

// VoteService handles PUT /services/:id/vote?vote=up|down
func (h *VoteHandler) VoteService(c *gin.Context) {
	h.cast(c, c.Param("id"), models.VotableService, "service")
}

// VoteComment handles PUT /services/:id/comments/:comment_id/vote?vote=up|down
func (h *VoteHandler) VoteComment(c *gin.Context) {
	// 评论必须属于路径中的服务
	comment, err := h.store.GetComment(c.Request.Context(), c.Param("comment_id"))
	if errors.Is(err, db.ErrNotFound) || (err == nil && comment.ServiceID != c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no comment found"})
		return
	}
	if err != nil {
		RespondError(c, err)
		return
	}
	h.cast(c, c.Param("comment_id"), models.VotableComment, "comment")
}

func (h *VoteHandler) cast(c *gin.Context, itemID string, kind models.VotableType, field string) {
	voter, ok := currentWallet(c)
	if !ok {
		return
	}
	direction, err := models.ParseVoteType(c.Query("vote"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, vote, err := h.ledger.CastVote(c.Request.Context(), itemID, kind, voter, direction)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		field:  item,
		"vote": vote,
	})
}
