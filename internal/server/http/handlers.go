package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ksolodov/fieldreporter/internal/api"
	"github.com/ksolodov/fieldreporter/internal/common"
)

// writeError maps sentinel errors to HTTP statuses. Anything
// unclassified is a 500 so clients treat it as transient.
func (h *Handlers) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, common.ErrVersionConflict):
		status = http.StatusConflict
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrPermanentValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrTransientNetwork):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, api.Error{Message: err.Error()})
}

func (h *Handlers) register(c *gin.Context) {
	var req api.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.Error{Message: "malformed request body"})
		return
	}

	resp, err := h.devices.Register(c.Request.Context(), req.DeviceName)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) login(c *gin.Context) {
	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.Error{Message: "malformed request body"})
		return
	}

	resp, err := h.devices.Login(c.Request.Context(), req.DeviceID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) push(c *gin.Context) {
	var items []api.PushItem
	if err := c.ShouldBindJSON(&items); err != nil {
		c.JSON(http.StatusBadRequest, api.Error{Message: "malformed request body"})
		return
	}

	results, err := h.sync.Push(c.Request.Context(), c.GetString(deviceIDKey), items)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *Handlers) pull(c *gin.Context) {
	since := int64(0)
	if raw := c.Query("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, api.Error{Message: "invalid since parameter"})
			return
		}
		since = parsed
	}

	resp, err := h.sync.Pull(c.Request.Context(), since)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) uploadChunk(c *gin.Context) {
	mediaID := c.Param("id")

	offset, err := strconv.ParseInt(c.Query("offset"), 10, 64)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, api.Error{Message: "invalid offset parameter"})
		return
	}

	result, err := h.media.ReceiveChunk(c.Request.Context(), mediaID, offset, c.Request.Body)
	if err != nil {
		// An offset mismatch carries the expected offset; answer 409
		// with the result body so the client can resynchronize.
		if result != nil && errors.Is(err, common.ErrVersionConflict) {
			c.JSON(http.StatusConflict, result)
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handlers) completeMedia(c *gin.Context) {
	result, err := h.media.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		if result != nil && errors.Is(err, common.ErrVersionConflict) {
			c.JSON(http.StatusConflict, result)
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
