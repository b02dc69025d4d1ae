package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var messages = map[string]string{
	"required":    "Field is required",
	"uuid":        "Must be a UUID",
	"gtfield":     "Must be after %s",
	"notzerotime": "Must be a valid timestamp",
}

var registerOnce sync.Once

// registerValidators names fields by their json tag and adds the
// notzerotime tag to gin's validator engine.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		if err := v.RegisterValidation("notzerotime", func(fl validator.FieldLevel) bool {
			t, ok := fl.Field().Interface().(time.Time)
			return ok && !t.IsZero()
		}); err != nil {
			panic(err)
		}
	})
}

// Validation turns binding errors a handler attached with c.Error into a 400
// listing every offending field.
func Validation() gin.HandlerFunc {
	registerValidators()

	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		var out []ValidationError
		for _, e := range c.Errors {
			var errs validator.ValidationErrors
			if !errors.As(e.Err, &errs) {
				continue
			}
			for _, fe := range errs {
				out = append(out, ValidationError{
					Field:   fe.Field(),
					Message: messageFor(fe),
				})
			}
		}

		if len(out) > 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"errors":  out,
			})
		}
	}
}

func messageFor(fe validator.FieldError) string {
	msg, ok := messages[fe.Tag()]
	if !ok {
		return fe.Error()
	}
	if strings.Contains(msg, "%s") {
		return strings.Replace(msg, "%s", fe.Param(), 1)
	}
	return msg
}
