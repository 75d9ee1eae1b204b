// Package auth issues and validates the JWTs that authenticate field
// devices.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ksolodov/fieldreporter/internal/common"
)

// Claims carries the device identity inside the token.
type Claims struct {
	jwt.RegisteredClaims
	DeviceID string
}

// GenerateToken creates an HS256-signed token for the device.
func GenerateToken(deviceID string, secretKey []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		DeviceID: deviceID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// GetDeviceIDFromToken parses and validates the token and returns the
// device id it was issued to.
func GetDeviceIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secretKey, nil
		})
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", common.ErrInvalidToken
	}
	return claims.DeviceID, nil
}
