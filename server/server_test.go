package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/krau/objclassify/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeClassifier struct {
	mu      sync.Mutex
	loaded  bool
	results []service.Result
	got     [][]byte
}

func (f *fakeClassifier) Classify(data []byte) []service.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, data)
	if !f.loaded {
		return service.Fallback()
	}
	return f.results
}

func (f *fakeClassifier) IsLoaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

func (f *fakeClassifier) Model() string {
	if f.IsLoaded() {
		return "model_quant.onnx"
	}
	return ""
}

func (f *fakeClassifier) Labels() []string {
	if f.IsLoaded() {
		return []string{"cat", "dog"}
	}
	return nil
}

func (f *fakeClassifier) setLoaded(v bool) {
	f.mu.Lock()
	f.loaded = v
	f.mu.Unlock()
}

func uploadRequest(t *testing.T, field string, payload []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, "photo.jpg")
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeResults(t *testing.T, rec *httptest.ResponseRecorder) []service.Result {
	t.Helper()
	var resp struct {
		Results []service.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Results
}

func TestPredict(t *testing.T) {
	clf := &fakeClassifier{
		loaded:  true,
		results: []service.Result{{Label: "cat", Confidence: 0.9}, {Label: "dog", Confidence: 0.1}},
	}
	r := New(clf, Options{Log: zaptest.NewLogger(t)})

	rec := serve(r, uploadRequest(t, "file", []byte("image-bytes")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, clf.results, decodeResults(t, rec))
	require.Len(t, clf.got, 1)
	assert.Equal(t, "image-bytes", string(clf.got[0]))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestPredictNotLoadedReturnsFallback(t *testing.T) {
	r := New(&fakeClassifier{}, Options{})

	rec := serve(r, uploadRequest(t, "file", []byte("anything")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.Fallback(), decodeResults(t, rec))
}

func TestPredictRejections(t *testing.T) {
	clf := &fakeClassifier{loaded: true}
	r := New(clf, Options{Token: "secret", MaxUploadMB: 1})

	t.Run("missing token", func(t *testing.T) {
		rec := serve(r, uploadRequest(t, "file", []byte("x")))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong token", func(t *testing.T) {
		req := uploadRequest(t, "file", []byte("x"))
		req.Header.Set("Authorization", "Bearer nope")
		assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
	})

	t.Run("missing file field", func(t *testing.T) {
		req := uploadRequest(t, "image", []byte("x"))
		req.Header.Set("Authorization", "Bearer secret")
		assert.Equal(t, http.StatusBadRequest, serve(r, req).Code)
	})

	t.Run("too large", func(t *testing.T) {
		req := uploadRequest(t, "file", bytes.Repeat([]byte{0xff}, 2<<20))
		req.Header.Set("Authorization", "Bearer secret")
		assert.Equal(t, http.StatusRequestEntityTooLarge, serve(r, req).Code)
	})

	assert.Empty(t, clf.got)

	t.Run("valid token", func(t *testing.T) {
		req := uploadRequest(t, "file", []byte("x"))
		req.Header.Set("Authorization", "Bearer secret")
		assert.Equal(t, http.StatusOK, serve(r, req).Code)
	})
}

func TestHealthAndLabels(t *testing.T) {
	clf := &fakeClassifier{}
	r := New(clf, Options{})

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","loaded":false}`, rec.Body.String())

	clf.setLoaded(true)
	rec = serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"healthy","loaded":true}`, rec.Body.String())

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/labels", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"loaded":true,"model":"model_quant.onnx","labels":["cat","dog"]}`, rec.Body.String())
}

func TestRequestIDPropagates(t *testing.T) {
	r := New(&fakeClassifier{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	assert.Equal(t, "abc-123", serve(r, req).Header().Get("X-Request-ID"))
}

func TestMetricsRoute(t *testing.T) {
	rec := serve(New(&fakeClassifier{}, Options{}), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(New(&fakeClassifier{}, Options{Metrics: true}), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "objclassify_model_loaded"))
}
