package handler_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"contaluz/internal/domain"
	"contaluz/internal/handler"
	"contaluz/internal/prompt"
	"contaluz/internal/service"
	"contaluz/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 120; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newHandler(t *testing.T, engine *mocks.MockInferenceEngine, maxImageMB int64) *handler.ExtractHandler {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.md"), []byte("Extraia os dados."), 0o644))
	prompts, err := prompt.NewLoader(dir)
	require.NoError(t, err)
	svc := service.NewExtractionService(engine, nil, prompts, nil, service.Options{MaxPixels: 1_000_000})
	return handler.NewExtractHandler(svc, maxImageMB)
}

type formFile struct {
	name        string
	contentType string
	data        []byte
}

func buildRequest(t *testing.T, fields map[string]string, file *formFile) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+file.name+`"`)
		h.Set("Content-Type", file.contentType)
		part, err := writer.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, "/extract/energy", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func perform(h *handler.ExtractHandler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	h.Extract(c)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error handler.APIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestExtract_MissingConcessionaria(t *testing.T) {
	engine := new(mocks.MockInferenceEngine)
	h := newHandler(t, engine, 12)

	req := buildRequest(t, map[string]string{"uf": "MG"}, nil)
	w := perform(h, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_CONCESSIONARIA", errorCode(t, w))
}

func TestExtract_MissingUF(t *testing.T) {
	engine := new(mocks.MockInferenceEngine)
	h := newHandler(t, engine, 12)

	req := buildRequest(t, map[string]string{"concessionaria": "CEMIG-D", "uf": "   "}, nil)
	w := perform(h, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_UF", errorCode(t, w))
}

func TestExtract_EngineUnavailable(t *testing.T) {
	engine := new(mocks.MockInferenceEngine)
	engine.On("Available").Return(false)
	h := newHandler(t, engine, 12)

	req := buildRequest(t, map[string]string{"concessionaria": "CEMIG-D", "uf": "MG"},
		&formFile{name: "conta.png", contentType: "image/png", data: pngBytes(t)})
	w := perform(h, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "ENGINE_UNAVAILABLE", errorCode(t, w))
}

func TestExtract_MissingFile(t *testing.T) {
	engine := new(mocks.MockInferenceEngine)
	engine.On("Available").Return(true)
	h := newHandler(t, engine, 12)

	req := buildRequest(t, map[string]string{"concessionaria": "CEMIG-D", "uf": "MG"}, nil)
	w := perform(h, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_FILE", errorCode(t, w))
}

func TestExtract_UnsupportedContentType(t *testing.T) {
	engine := new(mocks.MockInferenceEngine)
	engine.On("Available").Return(true)
	h := newHandler(t, engine, 12)

	req := buildRequest(t, map[string]string{"concessionaria": "CEMIG-D", "uf": "MG"},
		&formFile{name: "conta.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4")})
	w := perform(h, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNSUPPORTED_FILE_TYPE", errorCode(t, w))
}

func TestExtract_FileTooLarge(t *testing.T) {
	engine := new(mocks.MockInferenceEngine)
	engine.On("Available").Return(true)
	h := newHandler(t, engine, 0)

	req := buildRequest(t, map[string]string{"concessionaria": "CEMIG-D", "uf": "MG"},
		&formFile{name: "conta.png", contentType: "image/png", data: pngBytes(t)})
	w := perform(h, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "FILE_TOO_LARGE", errorCode(t, w))
}

func TestExtract_Success(t *testing.T) {
	engine := new(mocks.MockInferenceEngine)
	engine.On("Available").Return(true)
	engine.On("Infer", mock.Anything, mock.Anything).
		Return(`{"nome_cliente": "Maria Silva", "valor_fatura": "R$ 321,09"}`, nil)
	h := newHandler(t, engine, 12)

	req := buildRequest(t, map[string]string{"concessionaria": "CEMIG-D", "uf": "MG"},
		&formFile{name: "conta.png", contentType: "image/png", data: pngBytes(t)})
	w := perform(h, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out domain.Contract
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "Maria Silva", out.NomeCliente)
	assert.Equal(t, 321.09, out.ValorFatura)
	assert.Equal(t, "MG", out.Estado)
	assert.Equal(t, "CEMIG-D", out.Distribuidora)
	require.NotNil(t, out.ContaContrato)
	assert.Equal(t, "", *out.ContaContrato)
}

func TestExtract_InferenceTimeout(t *testing.T) {
	engine := new(mocks.MockInferenceEngine)
	engine.On("Available").Return(true)
	engine.On("Infer", mock.Anything, mock.Anything).Return("", domain.ErrInferenceTimeout)
	h := newHandler(t, engine, 12)

	req := buildRequest(t, map[string]string{"concessionaria": "CEMIG-D", "uf": "MG"},
		&formFile{name: "conta.png", contentType: "image/png", data: pngBytes(t)})
	w := perform(h, req)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "INFERENCE_TIMEOUT", errorCode(t, w))
}

func TestExtract_UnreadableImage(t *testing.T) {
	engine := new(mocks.MockInferenceEngine)
	engine.On("Available").Return(true)
	h := newHandler(t, engine, 12)

	req := buildRequest(t, map[string]string{"concessionaria": "CEMIG-D", "uf": "MG"},
		&formFile{name: "conta.png", contentType: "image/png", data: []byte("not a png")})
	w := perform(h, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNREADABLE_IMAGE", errorCode(t, w))
}
