package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mozillians/internal/access"
	"mozillians/internal/profiles"
	"mozillians/internal/server/mw"
	"mozillians/internal/server/resp"
)

type Voucher interface {
	Vouch(ctx context.Context, voucher *profiles.Profile, voucheeUsername, description string) (*profiles.Profile, error)
}

type ProfileHandler struct {
	logger *zap.Logger
	people Voucher
}

func NewProfileHandler(logger *zap.Logger, people Voucher) *ProfileHandler {
	return &ProfileHandler{logger: logger, people: people}
}

// GET /api/v2/me
func (h *ProfileHandler) Me(c *gin.Context) {
	p := mw.CurrentProfile(c)
	if p == nil {
		resp.Error(c, http.StatusUnauthorized, "error.unauthorized")
		return
	}
	resp.OK(c, gin.H{
		"profile": p,
		"scope":   access.GetPrivacy(p),
	})
}

type vouchReq struct {
	Description string `json:"description"`
}

// POST /api/v2/users/:username/vouch
func (h *ProfileHandler) Vouch(c *gin.Context) {
	voucher := mw.CurrentProfile(c)
	if voucher == nil {
		resp.Error(c, http.StatusUnauthorized, "error.unauthorized")
		return
	}
	var req vouchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, "error.bad_request")
		return
	}

	vouchee, err := h.people.Vouch(c.Request.Context(), voucher, c.Param("username"), req.Description)
	if err != nil {
		code, msg := vouchError(err)
		if code == http.StatusInternalServerError {
			h.logger.Error("vouch failed", zap.Error(err), zap.String("voucher", voucher.Username))
		}
		resp.Error(c, code, msg)
		return
	}
	h.logger.Info("vouched",
		zap.String("voucher", voucher.Username),
		zap.String("vouchee", vouchee.Username),
	)
	resp.Success(c, http.StatusCreated, "vouch.ok", gin.H{"profile": vouchee})
}

func vouchError(err error) (int, string) {
	switch {
	case errors.Is(err, profiles.ErrDescriptionRequired):
		return http.StatusBadRequest, "vouch.description_required"
	case errors.Is(err, profiles.ErrNotFound):
		return http.StatusNotFound, "error.not_found"
	case errors.Is(err, profiles.ErrSelfVouch):
		return http.StatusBadRequest, "vouch.self"
	case errors.Is(err, profiles.ErrCannotVouch):
		return http.StatusForbidden, "vouch.cannot_vouch"
	case errors.Is(err, profiles.ErrAlreadyVouched):
		return http.StatusConflict, "vouch.already"
	case errors.Is(err, profiles.ErrVouchLimit):
		return http.StatusConflict, "vouch.limit"
	default:
		return http.StatusInternalServerError, "error.internal"
	}
}
