package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/quiet-hours/pkg/errors"
	"github.com/jwalitptl/quiet-hours/pkg/httputil"
)

// BindJSON decodes the request body into req. Field validation failures are
// attached to the context for the validation middleware; anything else is
// answered as a bad request. It reports whether the handler may continue.
func BindJSON(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return false
	}
	httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
	return false
}
