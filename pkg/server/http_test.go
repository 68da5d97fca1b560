package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"promptcron/pkg/config"
)

func TestNewHttpServerServesEngine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cfg := &config.Config{}
	cfg.Server.Addr = "8080"

	srv := NewHttpServer(Params{Config: cfg, Handler: r})
	require.Equal(t, ":8080", srv.server.Addr)
	require.Nil(t, srv.server.TLSConfig)

	w := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestGetCertificateWithoutCert(t *testing.T) {
	srv := &Server{}
	_, err := srv.getCertificate(nil)
	require.Error(t, err)
}
