package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Models serves the OpenAI-style model listing from the registry.
func (h *Handler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   h.registry.List(),
	})
}

// Health is the unauthenticated liveness endpoint.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
