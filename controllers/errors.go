package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/circlefeed/services"
	"github.com/cppla/circlefeed/utils"
)

// respondError maps service error classes onto HTTP statuses. Validation
// failures echo their message; anything else is logged and masked.
func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownPost):
		utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
	case errors.Is(err, services.ErrUnknownUser):
		utils.Error(ctx, http.StatusNotFound, 40402, "user not found")
	case errors.Is(err, services.ErrValidation):
		utils.Error(ctx, http.StatusBadRequest, 40001, err.Error())
	case errors.Is(err, services.ErrDurability):
		utils.Logger.Error("durable write failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		utils.Error(ctx, http.StatusServiceUnavailable, 50301, "storage unavailable, retry later")
	default:
		utils.Logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50001, "internal error")
	}
}
