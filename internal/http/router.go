package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/veridata/trialbridge-backend/internal/http/handlers"
	"github.com/veridata/trialbridge-backend/internal/http/middleware"
)

type RouterConfig struct {
	HealthHandler       *handlers.HealthHandler
	VisitHandler        *handlers.VisitHandler
	AnchorHandler       *handlers.AnchorHandler
	VerificationHandler *handlers.VerificationHandler
	RequestLog          *middleware.RequestLogMiddleware
	AllowOrigins        []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))
	if cfg.RequestLog != nil {
		router.Use(cfg.RequestLog.Handle())
	}

	router.GET("/healthcheck", cfg.HealthHandler.HealthCheck)

	api := router.Group("/api")
	{
		// Data-entry collaborator
		api.POST("/visits", cfg.VisitHandler.AppendVisit)
		api.GET("/patients/:patientID/latest-hash", cfg.VisitHandler.LatestHash)

		// Audit / regulator collaborator
		api.GET("/visits/:visitID/verify", cfg.VerificationHandler.VerifyLeaf)
		api.GET("/patients/:patientID/verify-chain", cfg.VerificationHandler.VerifyChain)
		api.GET("/anchors/:anchorID/verify", cfg.VerificationHandler.VerifyAnchor)
		api.GET("/anchors", cfg.AnchorHandler.ListByTrial)

		// Operations
		api.POST("/anchors/run", cfg.AnchorHandler.Run)
	}

	return router
}
