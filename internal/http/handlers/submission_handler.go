package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-waitlist-backend/internal/http/middleware"
	"github.com/tbourn/go-waitlist-backend/internal/services"
)

// SubmitRequest is the JSON payload of POST /submit.
type SubmitRequest struct {
	Email        Text `json:"email" swaggertype:"string" example:"founder@example.com"`
	WhatsApp     Text `json:"whatsapp" swaggertype:"string" example:"+91 98765 43210"`
	BusinessType Text `json:"businessType" swaggertype:"string" example:"Retail"`
	Challenge    Text `json:"challenge" swaggertype:"string" example:"Finding customers"`
}

// Text is a form field that accepts any JSON scalar. Numbers keep their
// literal text (9876543210 stays "9876543210"), booleans become "true" or
// "false" and null is empty. Objects and arrays are rejected.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*t = ""
	case string:
		*t = Text(x)
	case json.Number:
		*t = Text(x.String())
	case bool:
		*t = Text(fmt.Sprint(x))
	default:
		return fmt.Errorf("handlers: expected a string, number or boolean, got %s", bytes.TrimSpace(b))
	}
	return nil
}

// SubmitResponse acknowledges an admitted submission. Success does not mean
// the row is already stored unless Durable is true.
type SubmitResponse struct {
	Success  bool   `json:"success" example:"true"`
	ID       string `json:"id" example:"0f8c5a8e-7c39-4c55-9d3c-2b2f4f0b9b1e"`
	Queued   bool   `json:"queued" example:"true"`
	Durable  bool   `json:"durable,omitempty"`
	Replayed bool   `json:"replayed,omitempty"`
}

// Submit godoc
// @ID          submit
// @Summary     Join the waitlist
// @Description Accepts a submission and queues it for appending to the store file. The response is sent once the append is queued, not once it is written.
// @Tags        Waitlist
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Retry-safe key"  example(3f9c1a2b-submit)
// @Param       body             body    handlers.SubmitRequest  true  "Submission"
//
// @Success     200  {object}  handlers.SubmitResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     503  {object}  handlers.ErrorResponse  "Queue busy or shutting down"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /submit [post]
func (h *Handlers) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body", nil)
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	in := services.SubmitInput{
		Email:        string(req.Email),
		WhatsApp:     string(req.WhatsApp),
		BusinessType: string(req.BusinessType),
		Challenge:    string(req.Challenge),
	}

	rc, err := h.submitSvc.Submit(c.Request.Context(), in, c.ClientIP(), key)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailRequired):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email is required", nil)
		case errors.Is(err, services.ErrFieldTooLong), errors.Is(err, services.ErrInvalidCharacters):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		case errors.Is(err, services.ErrQueueBusy):
			c.Header("Retry-After", "1")
			fail(c, http.StatusServiceUnavailable, ErrCodeBusy, "too many pending submissions, retry shortly", nil)
		case errors.Is(err, services.ErrQueueClosed):
			fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "server is shutting down", nil)
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSubmitFailed, "submission failed", err)
		}
		return
	}

	middleware.LoggerFrom(c).Info().
		Str("submission_id", rc.ID).
		Str("email_domain", emailDomain(string(req.Email))).
		Bool("replayed", rc.Replayed).
		Msg("submission queued")

	ok(c, http.StatusOK, SubmitResponse{
		Success:  true,
		ID:       rc.ID,
		Queued:   rc.Queued,
		Durable:  rc.Durable,
		Replayed: rc.Replayed,
	})
}

// emailDomain returns the lowercased part after the last '@', or "".
func emailDomain(email string) string {
	email = strings.TrimSpace(email)
	i := strings.LastIndexByte(email, '@')
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[i+1:])
}
