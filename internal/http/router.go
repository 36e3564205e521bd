package http

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/cors"
)

// RouterConfig holds the dependencies of NewRouter.
type RouterConfig struct {
	Core           Core
	Logger         *slog.Logger
	AllowedOrigins []string
	Middleware     []echo.MiddlewareFunc
}

// NewRouter wires the endpoints listed in the package documentation.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	h := NewHandler(cfg.Core, logger)
	stream := NewStream(h, cfg.AllowedOrigins)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(RequestLogger(logger))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			e.Use(mw)
		}
	}

	e.GET("/healthz", h.Health)

	api := e.Group("/api")
	api.GET("/state", h.State)
	api.GET("/stream", stream.Serve)

	api.POST("/session", h.SignIn)
	api.DELETE("/session", h.SignOut)
	api.PUT("/profile", h.UpdateProfile)

	api.POST("/events", h.CreateEvent)
	api.POST("/events/sync", h.SyncEvents)
	api.POST("/events/:id/join", h.JoinEvent)
	api.POST("/events/:id/chat", h.OpenEventChat)
	api.DELETE("/events/:id", h.DeleteEvent)

	api.POST("/locations/refresh", h.RefreshLocations)
	api.POST("/locations/:id/toggle", h.ToggleLocation)

	api.POST("/channels/direct", h.MessagePerson)
	api.PUT("/channels/active", h.SelectChannel)
	api.DELETE("/channels/:id", h.LeaveChannel)

	api.PUT("/surface", h.SetSurface)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(e)
}
