package server

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/krau/objclassify/service"
	"go.uber.org/zap"
)

var errUnauthorized = errors.New("unauthorized")

// Classifier is the part of service.Pipeline the transport layer uses.
type Classifier interface {
	Classify(data []byte) []service.Result
	IsLoaded() bool
	Model() string
	Labels() []string
}

type handler struct {
	clf      Classifier
	token    string
	maxBytes int64
	log      *zap.Logger
}

func (h *handler) authenticate(c *gin.Context) error {
	if h.token == "" {
		return nil
	}
	provided, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(h.token)) != 1 {
		return errUnauthorized
	}
	return nil
}

func (h *handler) predict(c *gin.Context) {
	if err := h.authenticate(c); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}
	if c.Request.ContentLength > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open uploaded file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read uploaded file"})
		return
	}

	results := h.clf.Classify(data)
	h.log.Debug("classified upload",
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.String("filename", fileHeader.Filename),
		zap.Int("bytes", len(data)),
		zap.Any("results", results))
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *handler) labels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"loaded": h.clf.IsLoaded(),
		"model":  h.clf.Model(),
		"labels": h.clf.Labels(),
	})
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "loaded": h.clf.IsLoaded()})
}
