package common

import "net/http"

// ParseLimitOffset extracts limit and offset query parameters for list
// endpoints, clamping the limit to maxLimit.
func ParseLimitOffset(r *http.Request, defaultLimit, maxLimit int32) (limit, offset int32) {
	limit = int32(AtoiDefault(r.URL.Query().Get("limit"), int(defaultLimit)))
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	offset = int32(AtoiDefault(r.URL.Query().Get("offset"), 0))
	if offset < 0 {
		offset = 0
	}
	return
}
