package handlers

import (
	"net/http"
	"strconv"

	"servicemarket/internal/db"
	"servicemarket/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RespondError writes err as a JSON error with the status the core error maps to.
func RespondError(c *gin.Context, err error) {
	status := middleware.StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}

// pageFromQuery 读取 page / page_size 分页参数
func pageFromQuery(c *gin.Context) db.Page {
	page := db.Page{Page: 1, PageSize: db.DefaultPageSize}
	if p := c.Query("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			page.Page = n
		}
	}
	if p := c.Query("page_size"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			page.PageSize = n
		}
	}
	return page.Normalize()
}

// currentWallet returns the caller's address or writes a 401 and returns false.
func currentWallet(c *gin.Context) (string, bool) {
	address, ok := middleware.WalletAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet authentication required"})
		return "", false
	}
	return address, true
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
