package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"nearby"
)

// debugAPI is a local-only HTTP surface for inspecting one node's state,
// grounded on server/api.go's APIServer: echo with request-logging and
// recover middleware, a JSON error handler, graceful shutdown on ctx.
type debugAPI struct {
	core *nearby.Core
	echo *echo.Echo
}

func newDebugAPI(core *nearby.Core) *debugAPI {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[api] %s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = jsonErrorHandler

	a := &debugAPI{core: core, echo: e}
	e.GET("/health", a.handleHealth)
	e.GET("/api/node", a.handleNode)
	return a
}

func (a *debugAPI) Run(ctx context.Context, addr string) {
	go func() {
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(shutCtx); err != nil {
		log.Printf("[api] shutdown: %v", err)
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

func (a *debugAPI) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

type discoveredEndpointResponse struct {
	EndpointID   string `json:"endpoint_id"`
	EndpointName string `json:"endpoint_name"`
	Medium       string `json:"medium"`
}

type nodeResponse struct {
	EndpointID  string                       `json:"endpoint_id"`
	ServiceID   string                       `json:"service_id"`
	Advertising bool                         `json:"advertising"`
	Discovering bool                         `json:"discovering"`
	Mediums     []string                     `json:"mediums"`
	Discovered  []discoveredEndpointResponse `json:"discovered"`
}

func (a *debugAPI) handleNode(c echo.Context) error {
	snap := a.core.Snapshot()
	resp := nodeResponse{
		EndpointID:  snap.EndpointID,
		ServiceID:   snap.ServiceID,
		Advertising: snap.Advertising,
		Discovering: snap.Discovering,
		Mediums:     snap.Mediums,
	}
	for _, fe := range snap.Discovered {
		resp.Discovered = append(resp.Discovered, discoveredEndpointResponse{
			EndpointID:   fe.EndpointID,
			EndpointName: string(fe.EndpointName),
			Medium:       fe.Medium.String(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if !c.Response().Committed {
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
		} else {
			_ = c.JSON(code, map[string]string{"error": msg})
		}
	}
}
