package server

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/majidsafwaan2/gymguard/internal/config"
)

func TestNewHTTPServerAppliesTimeoutProfile(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		HTTPReadTimeout:     2 * time.Second,
		HTTPWriteTimeout:    3 * time.Second,
		HTTPIdleTimeout:     4 * time.Second,
		HTTPShutdownTimeout: 5 * time.Second,
	}

	srv := NewHTTPServer(cfg, gin.New())
	require.Equal(t, 2*time.Second, srv.readTimeout)
	require.Equal(t, 3*time.Second, srv.writeTimeout)
	require.Equal(t, 4*time.Second, srv.idleTimeout)
	require.Equal(t, 5*time.Second, srv.shutdownTimeout)
	require.True(t, srv.Engine.HandleMethodNotAllowed)
	require.True(t, srv.Engine.ForwardedByClientIP)
}
