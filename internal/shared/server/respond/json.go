package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes payload as JSON with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// OK writes payload with 200.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// Empty writes status with no body.
func Empty(c *gin.Context, status int) {
	c.Status(status)
	c.Writer.WriteHeaderNow()
}
