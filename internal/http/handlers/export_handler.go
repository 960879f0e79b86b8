package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-waitlist-backend/internal/services"
)

// xlsxContentType is the media type of the store file.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Download godoc
// @ID          download
// @Summary     Download the waitlist
// @Description Returns the store file verbatim as an attachment.
// @Tags        Waitlist
// @Produce     application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce     json
//
// @Success     200  {file}    file
// @Failure     404  {object}  handlers.ErrorResponse  "No submissions stored yet"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /download [get]
func (h *Handlers) Download(c *gin.Context) {
	exp, err := h.exportSvc.Open(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrStoreNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "Excel file not found.", nil)
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "download failed", err)
		return
	}

	// The file is only ever replaced by rename, so the open inside
	// FileAttachment sees one complete version.
	c.Header("Content-Type", xlsxContentType)
	c.Header("Cache-Control", "no-store")
	c.FileAttachment(exp.Path, exp.Name)
}
