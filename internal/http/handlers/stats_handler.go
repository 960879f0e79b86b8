package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-waitlist-backend/internal/services"
)

// Stats godoc
// @ID          stats
// @Summary     Store statistics
// @Description Row count, file size and modification time of the store file plus the append backlog. Supports a weak ETag via If-None-Match and may return 304.
// @Tags        Waitlist
// @Produce     json
//
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"stats:3:6123:1760700000:0\")
//
// @Success     200  {object}  services.Stats
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     503  {object}  handlers.ErrorResponse  "Shutting down"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	st, err := h.statsSvc.Stats(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrQueueClosed):
			fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "server is shutting down", nil)
		case errors.Is(err, services.ErrQueueBusy):
			fail(c, http.StatusServiceUnavailable, ErrCodeBusy, "server is busy", nil)
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "stats failed", err)
		}
		return
	}

	etag := statsETag(st)
	c.Header("ETag", etag)
	c.Header("Cache-Control", "no-cache")
	if etagMatches(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return
	}
	ok(c, http.StatusOK, st)
}

func statsETag(st services.Stats) string {
	var mod int64
	if st.ModifiedAt != nil {
		mod = st.ModifiedAt.UnixNano()
	}
	return fmt.Sprintf(`W/"stats:%d:%d:%d:%d"`, st.Rows, st.SizeBytes, mod, st.QueueDepth)
}

// etagMatches implements weak comparison against an If-None-Match list.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "*" || strings.TrimPrefix(part, "W/") == want {
			return true
		}
	}
	return false
}
