package response

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
	"github.com/noah-isme/campus-tutoring-api/pkg/middleware/requestid"
)

func newRequestContext(reqID string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/sessions/s-1", nil)
	if reqID != "" {
		c.Request.Header.Set(requestid.HeaderKey, reqID)
		requestid.Middleware()(c)
	}
	return c, rec
}

func TestErrorEchoesRequestID(t *testing.T) {
	c, rec := newRequestContext("req-42")

	Error(c, appErrors.Clone(appErrors.ErrSessionFull, "no seats left"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), `"code":"SESSION_FULL"`)
	assert.Contains(t, rec.Body.String(), `"request_id":"req-42"`)
}

func TestJSONKeepsCallerMeta(t *testing.T) {
	c, rec := newRequestContext("req-7")

	JSON(c, http.StatusOK, map[string]int{"remaining_seats": 3}, nil, map[string]interface{}{"sort": "date"})

	body := rec.Body.String()
	assert.Contains(t, body, `"remaining_seats":3`)
	assert.Contains(t, body, `"sort":"date"`)
	assert.Contains(t, body, `"request_id":"req-7"`)
}

func TestJSONWithoutRequestIDOmitsMeta(t *testing.T) {
	c, rec := newRequestContext("")

	JSON(c, http.StatusOK, "ok", nil)

	assert.NotContains(t, rec.Body.String(), "meta")
}

func TestAttachmentQuotesFilename(t *testing.T) {
	c, rec := newRequestContext("")

	Attachment(c, "roster_Calculus review_20261021.csv", "text/csv", []byte("student_id\n"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="roster_Calculus review_20261021.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "student_id\n", rec.Body.String())
}
