package mockbackend

import (
	"errors"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// ErrNoAllowedOrigins is returned when CORS is requested without any origin.
var ErrNoAllowedOrigins = errors.New("mockbackend.cors.no_allowed_origins")

// PermissiveCORS builds a CORS middleware for browser clients of the mock
// services. The identity routes need the apikey header and the partner routes
// need Authorization.
func PermissiveCORS(allowedOrigins []string) (gin.HandlerFunc, error) {
	if len(allowedOrigins) == 0 {
		return nil, ErrNoAllowedOrigins
	}
	configuration := cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "apikey"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	return cors.New(configuration), nil
}
