package httpserver

import "github.com/labstack/echo/v4"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pageBounds turns ?page=&size= into an offset and limit; page is 1-based.
func pageBounds(c echo.Context) (from, size int) {
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	size = queryInt(c, "size", defaultPageSize)
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	return (page - 1) * size, size
}
