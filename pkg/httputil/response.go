package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/lab-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Page carries pagination metadata alongside list results.
type Page struct {
	Items  interface{} `json:"items"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
	Count  int         `json:"count"`
}

// RespondWithSuccess sends a 200 success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	RespondWithStatus(c, http.StatusOK, data)
}

// RespondWithStatus sends a success response with an explicit status code
func RespondWithStatus(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Status: "success",
		Data:   data,
	})
}

// RespondWithPage sends a paginated list
func RespondWithPage(c *gin.Context, items interface{}, count, limit, offset int) {
	RespondWithSuccess(c, Page{
		Items:  items,
		Limit:  limit,
		Offset: offset,
		Count:  count,
	})
}

// RespondWithMessage sends an error response with a fixed status and message
func RespondWithMessage(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{
		Status: "error",
		Error:  message,
	})
}

// RespondWithError translates err into the error taxonomy. Internal error
// details are only exposed when gin is not running in release mode.
func RespondWithError(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	message := err.Error()

	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("request_id", c.GetString("request_id")).
			Msg("Request failed")
		if gin.Mode() == gin.ReleaseMode {
			message = "internal server error"
		}
	}

	RespondWithMessage(c, status, message)
}
