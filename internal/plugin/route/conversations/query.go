package conversations

import (
	"net/url"
	"strconv"

	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/gin-gonic/gin"
)

// pageQuery reads continuationToken, limit and the named watermark parameter.
func pageQuery(c *gin.Context, watermark string) (registrystore.PageQuery, error) {
	q := registrystore.PageQuery{ContinuationToken: c.Query("continuationToken")}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, &registrystore.ValidationError{Field: "limit", Message: "must be a non-negative integer"}
		}
		q.Limit = n
	}
	if v := c.Query(watermark); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return q, &registrystore.ValidationError{Field: watermark, Message: "must be a unix time in milliseconds"}
		}
		q.LastSeenUnixTime = n
	}
	return q, nil
}

// nextURI rebuilds the request path with every filter parameter resupplied and
// the continuation token appended.
func nextURI(path string, params url.Values, watermark string, q registrystore.PageQuery, limit int, token string) string {
	params.Set("limit", strconv.Itoa(limit))
	params.Set(watermark, strconv.FormatInt(q.LastSeenUnixTime, 10))
	params.Set("continuationToken", token)
	return path + "?" + params.Encode()
}
