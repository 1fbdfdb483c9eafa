package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/class-session-api/pkg/errors"
	"github.com/noah-isme/class-session-api/pkg/response"
)

// parseRange reads the from/to query parameters as RFC3339 instants. On failure it writes the error
// response and returns ok=false.
func parseRange(c *gin.Context) (from, to time.Time, ok bool) {
	rawFrom := strings.TrimSpace(c.Query("from"))
	rawTo := strings.TrimSpace(c.Query("to"))
	if rawFrom == "" || rawTo == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from and to are required"))
		return time.Time{}, time.Time{}, false
	}
	from, err := time.Parse(time.RFC3339, rawFrom)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "from must be RFC3339"))
		return time.Time{}, time.Time{}, false
	}
	to, err = time.Parse(time.RFC3339, rawTo)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "to must be RFC3339"))
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}
