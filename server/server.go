package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/krau/objclassify/monitor"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

type Options struct {
	// Token enables bearer authentication on /predict when non-empty.
	Token       string
	MaxUploadMB int64
	Metrics     bool
	Log         *zap.Logger
}

// New builds the HTTP API around clf.
func New(clf Classifier, opts Options) *gin.Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	maxMB := opts.MaxUploadMB
	if maxMB <= 0 {
		maxMB = 16
	}
	h := &handler{
		clf:      clf,
		token:    opts.Token,
		maxBytes: maxMB << 20,
		log:      log,
	}

	r := gin.New()
	r.MaxMultipartMemory = h.maxBytes
	r.Use(gin.Recovery(), requestID(), accessLog(log))
	r.POST("/predict", h.predict)
	r.GET("/labels", h.labels)
	r.GET("/health", h.health)
	if opts.Metrics {
		r.GET("/metrics", gin.WrapH(monitor.Handler()))
	}
	return r
}

// requestID propagates the caller's X-Request-ID or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
