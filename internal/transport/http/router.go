package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const identityKey = "identity"

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Service GameService
	WS      *WSHandler
	Auth    *Authenticator
	Logger  *zap.Logger
	// AllowedOrigins lists CORS origins; empty allows any origin.
	AllowedOrigins []string
}

// NewRouter builds the gin engine serving /healthz, /ws and the game API.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
		corsCfg.AllowCredentials = true
	} else {
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/ws", gin.WrapF(cfg.WS.ServeWS))

	h := &gameHandler{service: cfg.Service}
	games := r.Group("/api/games")
	{
		games.GET("/code/:code", h.getByCode)

		admin := games.Group("", requireAdmin(cfg.Auth))
		admin.POST("", h.create)
		admin.GET("/:id", h.getByID)
	}
	return r
}

type gameHandler struct {
	service GameService
}

type createGameBody struct {
	Title       string   `json:"title"`
	QuestionIDs []string `json:"questionIds"`
}

// publicGame is what players see before and during a match.
type publicGame struct {
	ID             string                    `json:"id"`
	Code           string                    `json:"code"`
	Title          string                    `json:"title"`
	Status         domain.GameStatus         `json:"status"`
	TotalQuestions int                       `json:"totalQuestions"`
	Players        []domain.LeaderboardEntry `json:"players"`
}

func (h *gameHandler) create(c *gin.Context) {
	var body createGameBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	id := c.MustGet(identityKey).(Identity)
	game, err := h.service.CreateGame(c.Request.Context(), app.CreateGameRequest{
		Title:       body.Title,
		AdminID:     id.UserID,
		QuestionIDs: body.QuestionIDs,
	})
	if err != nil {
		writeError(c, err, "Failed to create game")
		return
	}
	c.JSON(http.StatusCreated, game)
}

func (h *gameHandler) getByCode(c *gin.Context) {
	game, err := h.service.GameByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err, "Failed to load game")
		return
	}
	c.JSON(http.StatusOK, publicGame{
		ID:             game.ID,
		Code:           game.Code,
		Title:          game.Title,
		Status:         game.Status,
		TotalQuestions: len(game.Questions),
		Players:        game.Roster(),
	})
}

func (h *gameHandler) getByID(c *gin.Context) {
	game, err := h.service.GameByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "Failed to load game")
		return
	}
	c.JSON(http.StatusOK, game)
}

func requireAdmin(auth *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := auth.Authenticate(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if id.Role != domain.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func writeError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindInvalidState, domain.KindConflict:
		status = http.StatusConflict
	case domain.KindUnauthorized:
		status = http.StatusForbidden
	case domain.KindInvalid:
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": domain.PublicMessage(err, fallback)})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
