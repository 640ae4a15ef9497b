// Package handler holds the request helpers shared by the HTTP handlers.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/pkg/httputil"
	"github.com/jwalitptl/lab-api/pkg/validator"
)

// BindJSON decodes and validates the body into dst. On failure it writes
// a 400 with the joined validation messages and returns false.
func BindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		httputil.RespondWithMessage(c, http.StatusBadRequest, validator.Message(err))
		return false
	}
	return true
}

// ParseID reads a UUID path parameter, writing a 400 when it is malformed.
func ParseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httputil.RespondWithMessage(c, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

// QueryUUID reads an optional UUID query parameter.
func QueryUUID(c *gin.Context, key string) (*uuid.UUID, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.RespondWithMessage(c, http.StatusBadRequest, "invalid "+key)
		return nil, false
	}
	return &id, true
}

// QueryBool reads an optional boolean query parameter.
func QueryBool(c *gin.Context, key string) (*bool, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		httputil.RespondWithMessage(c, http.StatusBadRequest, key+" must be a boolean")
		return nil, false
	}
	return &v, true
}

// Pagination reads limit and offset, clamped into the supported range.
func Pagination(c *gin.Context) (model.Pagination, bool) {
	var p model.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		httputil.RespondWithMessage(c, http.StatusBadRequest, "limit and offset must be integers")
		return p, false
	}
	return p.Normalize(), true
}
