package http

import (
	"context"
	"os"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Roulette/internal/adapters/signal"
	"github.com/dkeye/Roulette/internal/config"
)

const clientCookie = "ct"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable anonymous id that is
// used when a request does not name its clientId explicitly.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(clientCookie)
		if token == "" {
			token = genClientToken()
			c.SetCookie(clientCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, rooms *RoomHandlers, ws *signal.SignalWSController) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RouletteSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		if _, err := os.Stat(cfg.StaticPath); err == nil {
			r.Static("/static", cfg.StaticPath)
			r.GET("/", func(c *gin.Context) {
				c.File(cfg.StaticPath + "/index.html")
			})
		}
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	g := r.Group("/rooms")
	g.POST("", rooms.Match)
	g.GET("", rooms.Search)
	g.GET("/:id", rooms.Get)
	g.POST("/:id", rooms.Join)
	g.DELETE("/:id", rooms.Leave)
	g.PUT("/:id", rooms.SetStatus)

	if ws != nil {
		api := r.Group("/api")
		api.GET("/ws/chat", func(c *gin.Context) {
			ws.HandleChat(ctx, c)
		})
		api.GET("/ws/media", func(c *gin.Context) {
			ws.HandleMedia(ctx, c)
		})
	}

	return r
}
