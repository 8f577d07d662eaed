package app

import (
	"github.com/gin-gonic/gin"

	"github.com/veridata/trialbridge-backend/internal/http"
	httpH "github.com/veridata/trialbridge-backend/internal/http/handlers"
	httpMW "github.com/veridata/trialbridge-backend/internal/http/middleware"
	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
)

type Handlers struct {
	Health       *httpH.HealthHandler
	Visit        *httpH.VisitHandler
	Anchor       *httpH.AnchorHandler
	Verification *httpH.VerificationHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:       httpH.NewHealthHandler(),
		Visit:        httpH.NewVisitHandler(services.Chain),
		Anchor:       httpH.NewAnchorHandler(services.Anchor),
		Verification: httpH.NewVerificationHandler(services.Verification),
	}
}

func wireRouter(cfg Config, log *logger.Logger, handlers Handlers) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		HealthHandler:       handlers.Health,
		VisitHandler:        handlers.Visit,
		AnchorHandler:       handlers.Anchor,
		VerificationHandler: handlers.Verification,
		RequestLog:          httpMW.NewRequestLogMiddleware(log),
		AllowOrigins:        cfg.AllowOrigins,
	})
}
