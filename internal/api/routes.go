package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"valumatch/server/internal/corpus"
	"valumatch/server/internal/queue"
	"valumatch/server/internal/relationship"
	"valumatch/server/internal/search"
)

// SetupRoutes wires the HTTP surface onto the router.
func SetupRoutes(router *gin.Engine, orchestrator *search.Orchestrator, store *corpus.Store, rel *relationship.Store, signals *queue.SignalQueue, logger *logrus.Logger) {
	handler := NewHandler(orchestrator, store, rel, signals, logger)

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		api.POST("/comparables", handler.FindComparables)
		api.POST("/reinforce", handler.Reinforce)
		api.GET("/stats", handler.GetCityStats)
		api.GET("/metadata/:tier", handler.GetDiscoveredMetadata)
		api.GET("/health", handler.Health)
	}
}
