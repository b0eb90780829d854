package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contaluz/internal/handler"
	"contaluz/internal/service"
	"contaluz/mocks"
)

func TestHealth(t *testing.T) {
	engine := new(mocks.MockInferenceEngine)
	engine.On("Available").Return(true)
	detector := new(mocks.MockCropDetector)
	detector.On("Available").Return(false)

	svc := service.NewExtractionService(engine, detector, nil, nil, service.Options{})
	h := handler.NewHealthHandler(svc, "mlx-community/Qwen2.5-VL-7B-Instruct-4bit", 1)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/health", nil)
	h.Health(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "mlx-community/Qwen2.5-VL-7B-Instruct-4bit", body["model"])
	assert.Equal(t, 1.0, body["max_concurrency"])
	assert.Equal(t, true, body["engine_available"])
	assert.Equal(t, false, body["detector_available"])
}
