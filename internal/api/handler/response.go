package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campusexchange/points/internal/apperr"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard response helpers (§6: {ok:true,...} / {ok:false,code,message,issues?})
// ──────────────────────────────────────────────────────────────────────────────

// ok writes {"ok":true, ...fields} with the given status.
func ok(c *gin.Context, status int, fields gin.H) {
	body := gin.H{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}

// okData writes {"ok":true,"data":data}.
func okData(c *gin.Context, status int, data interface{}) {
	ok(c, status, gin.H{"data": data})
}

// okList writes {"ok":true,"data":items,"meta":{total,page,limit}}.
func okList(c *gin.Context, items interface{}, total, page, limit int) {
	ok(c, http.StatusOK, gin.H{
		"data": items,
		"meta": gin.H{"total": total, "page": page, "limit": limit},
	})
}

// fail writes the {"ok":false,"code","message"["issues"]} envelope for err
// and aborts the chain, classifying via apperr so every handler shares one
// shape (§7).
func fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(apperr.KindOf(err))
	body := gin.H{"ok": false, "code": apperr.CodeOf(err), "message": err.Error()}
	if issues := apperr.IssuesOf(err); len(issues) > 0 {
		body["issues"] = issues
	}
	c.AbortWithStatusJSON(status, body)
}

// failValidation writes a 400 validation failure for a request-binding error
// that never reached a service, so it carries no *apperr.Error of its own.
func failValidation(c *gin.Context, message string) {
	fail(c, apperr.New(apperr.KindValidation, "validation_error", message))
}

// parsePagination reads page (>=1) and limit (1-100, default 20) from the
// query string.
func parsePagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.Query("limit"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
