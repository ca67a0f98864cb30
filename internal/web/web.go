// Package web exposes the scheduling pipeline over HTTP.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"taskcal/internal/config"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/schedule"
)

const userIDKey = "userId"

// Runner schedules one request.
type Runner interface {
	Run(ctx context.Context, req model.AddTaskRequest) (schedule.Result, error)
}

// Server provides the HTTP API.
// Only /health and POST /api/tasks are served.
type Server struct {
	cfg    *config.Config
	runner Runner
	engine *gin.Engine
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, runner Runner, debug bool) *Server {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{cfg: cfg, runner: runner, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestLogger(), cors.Default())
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	if s.authEnabled() {
		appLog.Info("JWT bearer auth enabled", "claim", s.cfg.Auth.UserClaim)
		api.Use(s.accessTokenMiddleware())
	}
	api.POST("/tasks", s.handleAddTask)
}

func (s *Server) authEnabled() bool {
	return s.cfg != nil && s.cfg.Auth.JWTSecret != ""
}

// accessTokenMiddleware validates an HMAC-signed bearer token and stores the
// user ID claim in the request context.
func (s *Server) accessTokenMiddleware() gin.HandlerFunc {
	secret := []byte(s.cfg.Auth.JWTSecret)
	claim := s.cfg.Auth.UserClaim

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}
		userID, ok := claims[claim].(string)
		if !ok || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no " + claim + " claim"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// requestLogger logs one line per request through the application logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		appLog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

// handleHealth is a lightweight readiness probe.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleAddTask runs one scheduling request.
//
// POST /api/tasks
//
// Body: model.AddTaskRequest. With auth enabled the token's user wins; an
// explicit userId that differs from it is rejected.
func (s *Server) handleAddTask(c *gin.Context) {
	var req model.AddTaskRequest
	if tokenUser := c.GetString(userIDKey); tokenUser != "" {
		// Pre-fill so the required check passes when the body omits userId.
		req.UserID = tokenUser
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if tokenUser := c.GetString(userIDKey); tokenUser != "" && req.UserID != tokenUser {
		writeError(c, http.StatusForbidden, "userId does not match token")
		return
	}

	res, err := s.runner.Run(c.Request.Context(), req)
	var runErr *schedule.RunError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, schedule.ErrInvalidRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &runErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": runErr.Error(), "result": res})
	default:
		appLog.Error("scheduling request failed", err, "user_id", req.UserID)
		writeError(c, http.StatusInternalServerError, "scheduling failed")
	}
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// StartServer serves the API on cfg.Listen until ctx is cancelled, then
// shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, runner Runner, debug bool) error {
	s := NewServer(cfg, runner, debug)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen, "debug", debug)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}
