package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/circlefeed/middleware"
	"github.com/cppla/circlefeed/models"
	"github.com/cppla/circlefeed/services"
	"github.com/cppla/circlefeed/utils"
)

const maxPageMonths = 12

// FeedController serves publishing, comments and the bucket read paths.
type FeedController struct {
	svc        *services.FeedService
	cache      *utils.JSONCache
	pageMonths int
}

func NewFeedController(svc *services.FeedService, cache *utils.JSONCache, pageMonths int) *FeedController {
	if pageMonths <= 0 {
		pageMonths = 1
	}
	return &FeedController{svc: svc, cache: cache, pageMonths: pageMonths}
}

type publishRequest struct {
	Circles []string       `json:"circles" binding:"required,min=1"`
	Type    string         `json:"type" binding:"required"`
	Detail  map[string]any `json:"detail"`
	// WallOwnerID writes on another member's wall.
	WallOwnerID uint `json:"wall_owner_id"`
}

// CreatePost publishes a post from the caller to the given circles.
func (f *FeedController) CreatePost(ctx *gin.Context) {
	var req publishRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	circles := make([]string, 0, len(req.Circles))
	for _, c := range req.Circles {
		circles = append(circles, strings.TrimSpace(utils.SanitizeText(c)))
	}

	id, err := f.svc.Publish(ctx.Request.Context(), services.PublishRequest{
		AuthorID:    middleware.CurrentUserID(ctx),
		WallOwnerID: req.WallOwnerID,
		Circles:     circles,
		Type:        strings.TrimSpace(utils.SanitizeText(req.Type)),
		Detail:      utils.SanitizeDetail(req.Detail),
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, gin.H{"id": id})
}

// GetPost returns the authoritative post with its full comment sequence.
func (f *FeedController) GetPost(ctx *gin.Context) {
	id := ctx.Param("id")
	viewer := middleware.CurrentUserID(ctx)
	rc := ctx.Request.Context()

	var cached models.Post
	if f.cache.Get(rc, postCacheKey(id), &cached) {
		if err := f.svc.CheckVisible(rc, &cached, viewer); err != nil {
			respondError(ctx, err)
			return
		}
		utils.Success(ctx, cached)
		return
	}

	post, err := f.svc.GetPost(rc, id, viewer)
	if err != nil {
		respondError(ctx, err)
		return
	}
	f.cache.Set(rc, postCacheKey(id), post)
	utils.Success(ctx, post)
}

// AddComment appends a comment to a post the caller can see.
func (f *FeedController) AddComment(ctx *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	id := ctx.Param("id")
	viewer := middleware.CurrentUserID(ctx)
	rc := ctx.Request.Context()

	if _, err := f.svc.GetPost(rc, id, viewer); err != nil {
		respondError(ctx, err)
		return
	}
	comment, err := f.svc.AddComment(rc, id, viewer, utils.SanitizeText(req.Text))
	if err != nil {
		respondError(ctx, err)
		return
	}
	f.cache.Invalidate(rc, postCacheKey(id))
	utils.Created(ctx, comment)
}

// Feed pages through the caller's own feed.
func (f *FeedController) Feed(ctx *gin.Context) {
	me := middleware.CurrentUserID(ctx)
	f.page(ctx, func(before string) (*services.Cursor, error) {
		return f.svc.GetPosts(ctx.Request.Context(), models.KindFeed, me, me, before)
	})
}

// Wall pages through another member's wall as the caller sees it.
func (f *FeedController) Wall(ctx *gin.Context) {
	owner, ok := parseUserID(ctx, "id")
	if !ok {
		return
	}
	me := middleware.CurrentUserID(ctx)
	f.page(ctx, func(before string) (*services.Cursor, error) {
		return f.svc.GetPosts(ctx.Request.Context(), models.KindWall, owner, me, before)
	})
}

// Incoming lists everything written on the caller's wall except posts by
// members they blocked.
func (f *FeedController) Incoming(ctx *gin.Context) {
	me := middleware.CurrentUserID(ctx)
	f.page(ctx, func(before string) (*services.Cursor, error) {
		return f.svc.Incoming(ctx.Request.Context(), me, before)
	})
}

type entryView struct {
	Month string `json:"month"`
	models.PostCopy
}

// page drains whole months from the cursor. next_before names the month
// preceding the last one returned and is omitted once the walk ended.
func (f *FeedController) page(ctx *gin.Context, open func(before string) (*services.Cursor, error)) {
	months := f.pageMonths
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.Error(ctx, http.StatusBadRequest, 40002, "limit must be a positive number of months")
			return
		}
		months = min(n, maxPageMonths)
	}

	cur, err := open(ctx.Query("before"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	rc := ctx.Request.Context()
	items := []entryView{}
	seen, last, more := 0, "", false
	for cur.Next(rc) {
		e := cur.Entry()
		if e.Month != last {
			if seen == months {
				more = true
				break
			}
			seen++
			last = e.Month
		}
		items = append(items, entryView{Month: e.Month, PostCopy: e.Post})
	}
	if err := cur.Err(); err != nil {
		respondError(ctx, err)
		return
	}

	out := utils.Page{Items: items}
	if more {
		// last came out of a bucket, so it parses.
		out.NextBefore, _ = models.PrevMonth(last)
	}
	utils.Success(ctx, out)
}

func postCacheKey(id string) string { return "post:" + id }

func parseUserID(ctx *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(param), 10, 64)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid user id")
		return 0, false
	}
	return uint(id), true
}
