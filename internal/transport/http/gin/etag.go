package httpgin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// cachePolicy says how a cacheable GET response may be stored by clients.
type cachePolicy struct {
	control string
	// weak marks the ETag as semantically, not byte, equivalent.
	weak bool
}

var (
	// sessionCache matches the catalog cache TTL.
	sessionCache = cachePolicy{control: "public, max-age=30", weak: true}
	// seatMapCache forces revalidation; seats change within seconds.
	seatMapCache = cachePolicy{control: "no-cache"}
)

// writeCached writes v as JSON with an ETag derived from its encoding and
// answers 304 when If-None-Match already names that tag.
func writeCached(c *gin.Context, status int, v any, p cachePolicy) {
	b, err := json.Marshal(v)
	if err != nil {
		_ = c.Error(err)
		c.Status(http.StatusInternalServerError)
		return
	}

	tag := entityTag(b, p.weak)
	c.Header("ETag", tag)
	if p.control != "" {
		c.Header("Cache-Control", p.control)
	}

	if notModified(c.GetHeader("If-None-Match"), tag) {
		c.Status(http.StatusNotModified)
		return
	}

	c.Data(status, "application/json; charset=utf-8", b)
}

func entityTag(body []byte, weak bool) string {
	sum := sha256.Sum256(body)
	tag := `"` + hex.EncodeToString(sum[:16]) + `"`
	if weak {
		return "W/" + tag
	}
	return tag
}

// notModified applies the weak comparison of RFC 9110 to every tag listed in
// an If-None-Match header.
func notModified(header, tag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}

	want := strings.TrimPrefix(tag, "W/")
	for _, t := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(t), "W/") == want {
			return true
		}
	}
	return false
}
