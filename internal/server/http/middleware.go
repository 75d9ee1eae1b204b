package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ksolodov/fieldreporter/internal/api"
	"github.com/ksolodov/fieldreporter/internal/common"
	"github.com/ksolodov/fieldreporter/internal/server/auth"
)

// deviceIDKey is the gin context key carrying the authenticated device.
const deviceIDKey = "deviceID"

// AuthMiddleware validates the bearer token and stores the device id in
// the request context.
func AuthMiddleware(secretKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthHeaderName)
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.Error{Message: "missing authorization header"})
			return
		}

		token, ok := strings.CutPrefix(header, common.AuthScheme+" ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.Error{Message: "malformed authorization header"})
			return
		}

		deviceID, err := auth.GetDeviceIDFromToken(token, secretKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.Error{Message: "invalid token"})
			return
		}

		c.Set(deviceIDKey, deviceID)
		c.Next()
	}
}
