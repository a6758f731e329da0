package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/adapters/ws"
	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/store"
)

// AdminStore is the room/subscription CRUD consumed by the administrative
// endpoints. Satisfied by both the Postgres and the in-memory store.
type AdminStore interface {
	CreateRoom(ctx context.Context, name, admin string) (domain.RoomID, error)
	Room(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	Rooms(ctx context.Context) ([]domain.Room, error)
	DeleteRoom(ctx context.Context, id domain.RoomID) error
	Subscribe(ctx context.Context, uid domain.UserID, id domain.RoomID) error
	Unsubscribe(ctx context.Context, uid domain.UserID, id domain.RoomID) error
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, relay *app.Relay, adminStore AdminStore) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ParleySessions", cookieStore))
	r.Use(ClientTokenMiddleware())

	ctl := ws.NewController(relay, cfg)

	api := r.Group("/api")

	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("uid", c.GetString("client_token")).Msg("ws endpoint hit")
		ctl.Handle(c)
	})

	api.GET("/rooms", func(c *gin.Context) {
		rooms, err := adminStore.Rooms(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, rooms)
	})

	api.GET("/rooms/:id", func(c *gin.Context) {
		id, ok := roomParam(c)
		if !ok {
			return
		}
		room, err := adminStore.Room(c.Request.Context(), id)
		if errors.Is(err, store.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, room)
	})

	api.POST("/rooms", func(c *gin.Context) {
		var req struct {
			Name  string `json:"name" binding:"required"`
			Admin string `json:"admin" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		id, err := adminStore.CreateRoom(c.Request.Context(), req.Name, req.Admin)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	})

	api.DELETE("/rooms/:id", func(c *gin.Context) {
		id, ok := roomParam(c)
		if !ok {
			return
		}
		if err := adminStore.DeleteRoom(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/rooms/:id/end", func(c *gin.Context) {
		id, ok := roomParam(c)
		if !ok {
			return
		}
		relay.EndChat(id)
		c.Status(http.StatusNoContent)
	})

	api.POST("/rooms/:id/subscribers", func(c *gin.Context) {
		id, ok := roomParam(c)
		if !ok {
			return
		}
		var req struct {
			UserID string `json:"user_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		if err := adminStore.Subscribe(c.Request.Context(), domain.UserID(req.UserID), id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.DELETE("/rooms/:id/subscribers/:user", func(c *gin.Context) {
		id, ok := roomParam(c)
		if !ok {
			return
		}
		if err := adminStore.Unsubscribe(c.Request.Context(), domain.UserID(c.Param("user")), id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	return r
}

func roomParam(c *gin.Context) (domain.RoomID, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return 0, false
	}
	return domain.RoomID(id), true
}
