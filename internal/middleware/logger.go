package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger logs one line per request after the handler chain finishes. Stream
// requests show up here with their full open duration, which is expected.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}

		msg := ""
		if len(c.Errors) > 0 {
			msg = " " + c.Errors.String()
		}

		log.Printf("%s %s -> %d (%v, ip %s)%s",
			c.Request.Method,
			path,
			c.Writer.Status(),
			time.Since(start).Round(time.Millisecond),
			c.ClientIP(),
			msg,
		)
	}
}
