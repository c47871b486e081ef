package fhir

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// SetVersionHeaders sets ETag and Last-Modified on the response.
func SetVersionHeaders(c echo.Context, versionID int, lastModified string) {
	c.Response().Header().Set("ETag", FormatETag(versionID))
	if lastModified != "" {
		c.Response().Header().Set("Last-Modified", lastModified)
	}
}

// IfMatchVersion returns the version named by the If-Match header, or 0 when
// the header is absent.
func IfMatchVersion(c echo.Context) (int, error) {
	ifMatch := c.Request().Header.Get("If-Match")
	if ifMatch == "" {
		return 0, nil
	}
	v, err := ParseETag(ifMatch)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid If-Match header: "+err.Error())
	}
	return v, nil
}

// ParseETag extracts the version number from an ETag value like W/"3" or "3".
func ParseETag(etag string) (int, error) {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)

	v, err := strconv.Atoi(etag)
	if err != nil {
		return 0, fmt.Errorf("ETag must contain a numeric version: %s", etag)
	}
	return v, nil
}

// FormatETag creates a weak ETag from a version ID.
func FormatETag(versionID int) string {
	return fmt.Sprintf(`W/"%d"`, versionID)
}
