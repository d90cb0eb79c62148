package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the read API. Origins empty disables CORS headers.
func NewRouter(h *Handler, origins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	r.GET("/health", h.GetHealth)
	r.GET("/metrics", h.GetMetrics)
	r.GET("/articles", h.ListArticles)
	r.GET("/articles/:id", h.GetArticle)
	r.GET("/admin/translations", h.ListTranslations)

	return r
}
