package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	pb "breakout-backtest/proto"
	"breakout-backtest/services/backtest"
	"breakout-backtest/services/report"
	"breakout-backtest/services/sweep"
)

// SweepRequest runs a grid over the candles a backtest request would use.
type SweepRequest struct {
	pb.BacktestRequest
	Grid    sweep.Grid    `json:"grid"`
	Options sweep.Options `json:"options"`
}

type SweepResponse struct {
	Candidates int             `json:"candidates"`
	Candles    int             `json:"candles"`
	Ranked     []sweep.Outcome `json:"ranked"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  4096,
	HandshakeTimeout: 10 * time.Second,
}

// Router builds the REST API. A non-empty jwtSecret protects every route
// except health and metrics with HS256 bearer tokens.
func (s *BacktestService) Router(jwtSecret string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	s.setupHTTPRoutes(r, jwtSecret)
	return r
}

func (s *BacktestService) setupHTTPRoutes(r *gin.Engine, jwtSecret string) {
	api := r.Group("/api/v1")
	api.GET("/health", s.handleHealthCheck)
	api.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	protected := api.Group("")
	if jwtSecret != "" {
		protected.Use(JWTAuth(jwtSecret, s.logger))
	}
	{
		protected.POST("/backtest", s.handleBacktestRequest)
		protected.GET("/backtest/:job_id", s.handleGetBacktestResult)
		protected.GET("/backtest/:job_id/trades.csv", s.handleTradesCSV)
		protected.GET("/backtest/:job_id/frame.arrow", s.handleFrameArrow)
		protected.GET("/backtest/:job_id/stream", s.handleStream)
		protected.POST("/sweep", s.handleSweep)
		protected.GET("/runs", s.handleListRuns)
	}
}

func (s *BacktestService) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// JWTAuth validates HS256 bearer tokens and stores the subject claim.
func JWTAuth(secret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) != 2 || headerParts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
			return
		}

		token, err := jwt.Parse(headerParts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			logger.Debug("Rejected token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if sub, ok := claims["sub"]; ok {
				c.Set("subject", sub)
			}
		}
		c.Next()
	}
}

func httpStatus(err error) int {
	var cfgErr *backtest.ConfigError
	switch {
	case errors.As(err, &cfgErr), errors.Is(err, ErrInvalidRequest), errors.Is(err, sweep.ErrGridTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *BacktestService) handleBacktestRequest(c *gin.Context) {
	var req pb.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.Submit(&req)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": job.Status()})
}

func (s *BacktestService) lookup(c *gin.Context) (*Job, bool) {
	job, ok := s.jobs.get(c.Param("job_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	}
	return job, ok
}

// finished returns the report of a completed job or answers 409.
func (s *BacktestService) finished(c *gin.Context) (*backtest.Report, bool) {
	job, ok := s.lookup(c)
	if !ok {
		return nil, false
	}
	rep := job.Report()
	if rep == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "job has not completed", "status": job.Status()})
		return nil, false
	}
	return rep, true
}

func (s *BacktestService) handleGetBacktestResult(c *gin.Context) {
	job, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job.View())
}

func (s *BacktestService) handleTradesCSV(c *gin.Context) {
	rep, ok := s.finished(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-trades.csv"`, c.Param("job_id")))
	c.Status(http.StatusOK)
	if err := report.WriteTradesCSV(c.Writer, rep.Trades, rep.Result); err != nil {
		s.logger.Warn("Failed to stream trades", zap.Error(err))
	}
}

func (s *BacktestService) handleFrameArrow(c *gin.Context) {
	rep, ok := s.finished(c)
	if !ok {
		return
	}
	data, err := s.arrow.EncodeFrame(rep.Config.Symbol, rep.Frame)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", data)
}

// handleStream pushes the job view over a websocket on every state change and
// closes after the terminal state.
func (s *BacktestService) handleStream(c *gin.Context) {
	job, ok := s.lookup(c)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		view, changed := job.Watch()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(view); err != nil {
			return
		}
		if view.Status.Terminal() {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(view.Status)),
				time.Now().Add(time.Second))
			return
		}
		for waiting := true; waiting; {
			select {
			case <-changed:
				waiting = false
			case <-gone:
				return
			case <-c.Request.Context().Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}
}

func (s *BacktestService) handleSweep(c *gin.Context) {
	var req SweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if n := req.Grid.Size(); n > s.opts.MaxSweep {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("grid has %d candidates, limit is %d", n, s.opts.MaxSweep)})
		return
	}
	ctx := c.Request.Context()
	base, err := s.resolveConfig(&req.BacktestRequest)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	cs, err := s.loadCandles(ctx, base, &req.BacktestRequest)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}

	pool := sweep.Pool{
		Workers:  s.opts.Workers,
		Logger:   s.logger,
		OnResult: func(sweep.Outcome) { s.metrics.SweepCandidates.Inc() },
	}
	ranked, err := sweep.RunGrid(ctx, pool, cs, base, req.Grid, req.Options)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, SweepResponse{Candidates: req.Grid.Size(), Candles: len(cs), Ranked: ranked})
}

func (s *BacktestService) handleListRuns(c *gin.Context) {
	if s.opts.Runs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "run storage is not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.opts.Runs.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *BacktestService) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   backtest.EngineVersion,
	})
}
