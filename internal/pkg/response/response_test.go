package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	var resp Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func serve(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	router := gin.New()
	router.GET("/test", handler)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSuccess(t *testing.T) {
	w := serve(func(c *gin.Context) {
		Success(c, gin.H{"key": "value"})
	})

	assert.Equal(t, http.StatusOK, w.Code)

	resp := parseResponse(t, w)
	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "success", resp.Message)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "value", data["key"])
}

func TestSuccessWithMessage(t *testing.T) {
	w := serve(func(c *gin.Context) {
		SuccessWithMessage(c, "计划已创建", nil)
	})

	resp := parseResponse(t, w)
	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "计划已创建", resp.Message)
	assert.Nil(t, resp.Data)
}

func TestSuccessPage(t *testing.T) {
	w := serve(func(c *gin.Context) {
		SuccessPage(c, 3, 1, 2, []int{1, 2})
	})

	resp := parseResponse(t, w)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), data["total"])
	assert.Equal(t, float64(2), data["page_size"])
	assert.Len(t, data["items"], 2)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name    string
		call    func(c *gin.Context)
		code    int
		message string
	}{
		{"param default", func(c *gin.Context) { ParamError(c, "") }, CodeParamError, "参数错误"},
		{"param custom", func(c *gin.Context) { ParamError(c, "无效的分期ID") }, CodeParamError, "无效的分期ID"},
		{"auth", func(c *gin.Context) { AuthError(c, "") }, CodeAuthFailed, "认证失败"},
		{"permission", func(c *gin.Context) { PermissionError(c, "") }, CodePermissionDenied, "权限不足"},
		{"not found", func(c *gin.Context) { NotFoundError(c, "分期不存在") }, CodeResourceNotFound, "分期不存在"},
		{"business", func(c *gin.Context) { BusinessError(c, "") }, CodeBusinessRule, "业务规则不允许"},
		{"duplicate", func(c *gin.Context) { DuplicateError(c, "") }, CodeDuplicateAction, "重复操作"},
		{"upstream", func(c *gin.Context) { UpstreamError(c, "") }, CodeUpstreamError, "支付服务暂不可用"},
		{"server", func(c *gin.Context) { ServerError(c, "") }, CodeServerError, "服务器内部错误"},
		{"unknown code", func(c *gin.Context) { Error(c, 9999, "") }, 9999, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(tt.call)

			assert.Equal(t, http.StatusOK, w.Code)
			resp := parseResponse(t, w)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.message, resp.Message)
			assert.Nil(t, resp.Data)
		})
	}
}

func TestErrorWithData(t *testing.T) {
	w := serve(func(c *gin.Context) {
		ErrorWithData(c, CodeBusinessRule, "card declined", gin.H{"reason": "card_declined"})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, CodeBusinessRule, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "card_declined", data["reason"])
}

func TestWithStatus(t *testing.T) {
	w := serve(func(c *gin.Context) {
		WithStatus(c, http.StatusBadRequest, CodeParamError, "invalid signature")
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, CodeParamError, resp.Code)
	assert.Equal(t, "invalid signature", resp.Message)
}
