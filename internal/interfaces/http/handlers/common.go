package handlers

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/interfaces/http/middleware"
	apperrors "github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// Pagination bounds for list endpoints.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// bindJSON decodes and validates the request body. On failure it writes a 400
// and returns false.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.RespondError(c, invalidBody(err))
		return false
	}
	return true
}

// bindOptionalJSON is bindJSON for endpoints whose body may be empty.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		middleware.RespondError(c, invalidBody(err))
		return false
	}
	return true
}

func invalidBody(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.New(apperrors.CodeInvalidParam, "invalid request body").WithDetail(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return apperrors.New(apperrors.CodeInvalidParam, "invalid request body").WithDetail(strings.Join(msgs, "; "))
}

// parsePagination reads limit and offset. Missing values take the defaults;
// malformed or out-of-range values are rejected.
func parsePagination(c *gin.Context) (limit, offset int, err error) {
	limit, offset = DefaultPageLimit, 0
	if v := c.Query("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 1 || n > MaxPageLimit {
			return 0, 0, apperrors.Newf(apperrors.CodeInvalidParam, "limit must be an integer in [1, %d]", MaxPageLimit)
		}
		limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			return 0, 0, apperrors.New(apperrors.CodeInvalidParam, "offset must be a non-negative integer")
		}
		offset = n
	}
	return limit, offset, nil
}
