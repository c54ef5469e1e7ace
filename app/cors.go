package app

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"toolhub/config"
)

// useCORS allows the web origin and every WebAuthn RP origin, with cookies.
func useCORS(r *gin.Engine, cfg config.Config) {
	origins := []string{cfg.WebOrigin}
	for _, o := range cfg.RPOrigins {
		if !slices.Contains(origins, o) {
			origins = append(origins, o)
		}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
