package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleSyncStatus handles GET /v1/sync/status
func HandleSyncStatus(sync SyncRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, sync.Status())
	}
}

// HandleSync handles POST /v1/sync. A pass already in progress is reported as skipped.
func HandleSync(sync SyncRunner, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := sync.DrainAndSync(c.Request.Context())
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// HandleConnectivity handles POST /v1/connectivity/:state where state is online or offline
func HandleConnectivity(sw ConnectivitySwitch, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := c.Param("state")
		switch state {
		case "online":
			sw.SetOnline(true)
		case "offline":
			sw.SetOnline(false)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "state must be online or offline"})
			return
		}

		logger.Info("Connectivity set manually", zap.String("state", state))
		c.JSON(http.StatusOK, gin.H{"state": state})
	}
}
