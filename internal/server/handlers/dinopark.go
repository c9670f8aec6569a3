package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mozillians/internal/access"
	"mozillians/internal/dinopark"
	"mozillians/internal/server/mw"
	"mozillians/internal/server/resp"
)

// DinoParkAPI is the orgchart and search backend; *dinopark.Client implements it.
type DinoParkAPI interface {
	Orgchart(ctx context.Context) (json.RawMessage, error)
	OrgchartRelated(ctx context.Context, userID string) (json.RawMessage, error)
	SearchSimple(ctx context.Context, scope access.Level, query string) (json.RawMessage, error)
	SearchProfile(ctx context.Context, scope access.Level, userID string) (json.RawMessage, error)
}

type DinoParkHandler struct {
	logger *zap.Logger
	api    DinoParkAPI
}

func NewDinoParkHandler(logger *zap.Logger, api DinoParkAPI) *DinoParkHandler {
	return &DinoParkHandler{logger: logger, api: api}
}

// GET /beta/
func (h *DinoParkHandler) Main(c *gin.Context) {
	c.HTML(http.StatusOK, "dinopark.html", gin.H{"Profile": mw.CurrentProfile(c)})
}

// orgchartScopes may see the org chart.
var orgchartScopes = []access.Level{access.Staff, access.Private}

// GET /api/v4/orgchart/
func (h *DinoParkHandler) Orgchart(c *gin.Context) {
	scope := access.GetPrivacy(mw.Caller(c))
	if !scope.In(orgchartScopes...) {
		resp.Error(c, http.StatusForbidden, "error.forbidden")
		return
	}
	body, err := h.api.Orgchart(c.Request.Context())
	h.forward(c, "orgchart", body, err)
}

// GET /api/v4/orgchart/related/:user_id
func (h *DinoParkHandler) OrgchartRelated(c *gin.Context) {
	scope := access.GetPrivacy(mw.Caller(c))
	if !scope.In(orgchartScopes...) {
		resp.Error(c, http.StatusForbidden, "error.forbidden")
		return
	}
	body, err := h.api.OrgchartRelated(c.Request.Context(), c.Param("user_id"))
	h.forward(c, "orgchart related", body, err)
}

// GET /api/v4/search/simple/:query
func (h *DinoParkHandler) SearchSimple(c *gin.Context) {
	scope := access.GetPrivacy(mw.Caller(c))
	body, err := h.api.SearchSimple(c.Request.Context(), scope, c.Param("query"))
	h.forward(c, "search simple", body, err)
}

// GET /api/v4/search/get/:user_id
func (h *DinoParkHandler) SearchProfile(c *gin.Context) {
	scope := access.GetPrivacy(mw.Caller(c))
	body, err := h.api.SearchProfile(c.Request.Context(), scope, c.Param("user_id"))
	h.forward(c, "search get", body, err)
}

// forward relays the upstream document unchanged, or a 500 envelope.
func (h *DinoParkHandler) forward(c *gin.Context, op string, body json.RawMessage, err error) {
	if err == nil {
		resp.Raw(c, body)
		return
	}
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("request_id", c.GetString(mw.CtxRequestID)),
		zap.Error(err),
	}
	var se *dinopark.StatusError
	if errors.As(err, &se) {
		fields = append(fields, zap.Int("upstream_status", se.Status))
	}
	h.logger.Error("dinopark upstream failed", fields...)
	_ = c.Error(err)
	resp.Error(c, http.StatusInternalServerError, "error.upstream")
}
