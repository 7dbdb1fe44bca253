package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status      string    `json:"status"`
	Database    string    `json:"database"`
	LastChecked time.Time `json:"last_checked"`
	Uptime      string    `json:"uptime"`
	Version     string    `json:"version"`
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

var (
	healthMutex   sync.Mutex
	startTime     = time.Now()
	lastStatus    HealthStatus
	cacheDuration = 5 * time.Second
	version       = "1.0.0"
)

// HealthCheckMiddleware reports whether the database answers. A result is reused for
// cacheDuration.
func HealthCheckMiddleware(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		healthMutex.Lock()
		defer healthMutex.Unlock()

		if time.Since(lastStatus.LastChecked) >= cacheDuration {
			lastStatus = HealthStatus{Status: "ok", Database: "ok", LastChecked: time.Now(), Version: version}

			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				lastStatus.Status = "degraded"
				lastStatus.Database = err.Error()
			}
		}
		lastStatus.Uptime = time.Since(startTime).Round(time.Second).String()

		code := http.StatusOK
		if lastStatus.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, lastStatus)
	}
}

func SetVersion(v string) {
	healthMutex.Lock()
	defer healthMutex.Unlock()

	version = v
	lastStatus = HealthStatus{}
}
