package app

import (
	"strings"
	"time"

	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
	"github.com/veridata/trialbridge-backend/internal/utils"
)

type Config struct {
	Port         string
	AllowOrigins []string

	// Anchoring cadence and lookback window.
	AnchorWindow   time.Duration
	AnchorInterval time.Duration
	AnchorLockTTL  time.Duration

	// External ledger.
	LedgerRPCURL         string
	AnchorContractAddr   string
	AnchorFromAddr       string
	LedgerRequestTimeout time.Duration
	LedgerConfirmTimeout time.Duration

	RedisAddr     string
	CRFSchemaPath string
}

func LoadConfig(log *logger.Logger) Config {
	windowHours := utils.GetEnvAsInt("ANCHOR_WINDOW_HOURS", 24, log)
	intervalMinutes := utils.GetEnvAsInt("ANCHOR_INTERVAL_MINUTES", 60, log)
	lockTTLMinutes := utils.GetEnvAsInt("ANCHOR_LOCK_TTL_MINUTES", 10, log)
	requestTimeoutSeconds := utils.GetEnvAsInt("LEDGER_REQUEST_TIMEOUT_SECONDS", 15, log)
	confirmTimeoutSeconds := utils.GetEnvAsInt("LEDGER_CONFIRM_TIMEOUT_SECONDS", 120, log)

	origins := strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", log), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return Config{
		Port:                 utils.GetEnv("PORT", "8080", log),
		AllowOrigins:         origins,
		AnchorWindow:         time.Duration(windowHours) * time.Hour,
		AnchorInterval:       time.Duration(intervalMinutes) * time.Minute,
		AnchorLockTTL:        time.Duration(lockTTLMinutes) * time.Minute,
		LedgerRPCURL:         utils.GetEnv("LEDGER_RPC_URL", "", log),
		AnchorContractAddr:   utils.GetEnv("ANCHOR_CONTRACT_ADDRESS", "", log),
		AnchorFromAddr:       utils.GetEnv("ANCHOR_FROM_ADDRESS", "", log),
		LedgerRequestTimeout: time.Duration(requestTimeoutSeconds) * time.Second,
		LedgerConfirmTimeout: time.Duration(confirmTimeoutSeconds) * time.Second,
		RedisAddr:            utils.GetEnv("REDIS_ADDR", "localhost:6379", log),
		CRFSchemaPath:        utils.GetEnv("CRF_SCHEMA_PATH", "", log),
	}
}
