package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/circlefeed/middleware"
	"github.com/cppla/circlefeed/services"
	"github.com/cppla/circlefeed/utils"
)

// GraphController edits the caller's circles and block list.
type GraphController struct {
	svc *services.FeedService
}

func NewGraphController(svc *services.FeedService) *GraphController {
	return &GraphController{svc: svc}
}

// AddMembers adds every listed user to the named circle. The circle is
// created by its first member.
func (g *GraphController) AddMembers(ctx *gin.Context) {
	var req struct {
		UserIDs []uint `json:"user_ids" binding:"required,min=1"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	me := middleware.CurrentUserID(ctx)
	circle := utils.SanitizeText(ctx.Param("name"))
	added := []uint{}
	for _, id := range utils.Unique(req.UserIDs) {
		if err := g.svc.AddToCircle(ctx.Request.Context(), me, id, circle); err != nil {
			respondError(ctx, err)
			return
		}
		added = append(added, id)
	}
	utils.Success(ctx, gin.H{"circle": circle, "added": added})
}

// RemoveMember drops one user from the named circle.
func (g *GraphController) RemoveMember(ctx *gin.Context) {
	other, ok := parseUserID(ctx, "userId")
	if !ok {
		return
	}
	circle := utils.SanitizeText(ctx.Param("name"))
	if err := g.svc.RemoveFromCircle(ctx.Request.Context(), middleware.CurrentUserID(ctx), other, circle); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"circle": circle, "removed": other})
}

// Block hides the user's posts from the caller and keeps them off the
// caller's wall.
func (g *GraphController) Block(ctx *gin.Context) {
	var req struct {
		UserID uint `json:"user_id" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	if err := g.svc.Block(ctx.Request.Context(), middleware.CurrentUserID(ctx), req.UserID); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"blocked": req.UserID})
}

func (g *GraphController) Unblock(ctx *gin.Context) {
	other, ok := parseUserID(ctx, "userId")
	if !ok {
		return
	}
	if err := g.svc.Unblock(ctx.Request.Context(), middleware.CurrentUserID(ctx), other); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"unblocked": other})
}
