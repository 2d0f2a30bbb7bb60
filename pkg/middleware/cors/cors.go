package cors

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-visit-api/pkg/middleware/requestid"
)

// New builds the CORS policy of the ops server. An empty list allows any
// origin with a wildcard; credentials are never allowed. Unlisted origins are
// rejected with 403.
func New(allowedOrigins []string) (gin.HandlerFunc, error) {
	cfg := gincors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", requestid.HeaderKey},
		ExposeHeaders: []string{requestid.HeaderKey},
		MaxAge:        10 * time.Minute,
	}

	origins := make([]string, 0, len(allowedOrigins))
	for _, raw := range allowedOrigins {
		origin := strings.TrimRight(strings.TrimSpace(raw), "/")
		if origin == "" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.Path != "" {
			return nil, fmt.Errorf("invalid allowed origin %q: want scheme://host[:port]", raw)
		}
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return gincors.New(cfg), nil
}
