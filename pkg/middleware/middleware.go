package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/predyn/wager-api/internal/auth"
	"github.com/predyn/wager-api/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.RWMutex

	// Configure limits per endpoint type
	authLimit    = rate.Limit(10.0 / 60.0)   // 10 requests per minute
	bettingLimit = rate.Limit(100.0 / 60.0)  // 100 requests per minute
	readLimit    = rate.Limit(1000.0 / 60.0) // 1000 requests per minute
)

// Cleanup old visitors periodically
func init() {
	go cleanupVisitors()
}

func getLimiter(path, clientIP string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := clientIP + ":" + path
	v, exists := visitors[key]

	if !exists {
		var limit rate.Limit
		switch {
		case strings.HasPrefix(path, "/api/v1/auth"):
			limit = authLimit
		case strings.Contains(path, "/bets"), strings.Contains(path, "/claim"):
			limit = bettingLimit
		case strings.HasPrefix(path, "/api/v1/rounds"), strings.HasPrefix(path, "/api/v1/events"):
			limit = readLimit
		default:
			limit = rate.Inf // No limit for other paths
		}

		v = &visitor{
			limiter:  rate.NewLimiter(limit, 1), // burst of 1
			lastSeen: time.Now(),
		}
		visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for ip, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, ip)
			}
		}
		mu.Unlock()
	}
}

func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		if clientID == "" {
			clientID = c.ClientIP()
		}

		limiter := getLimiter(c.FullPath(), clientID)
		if !limiter.Allow() {
			response.BadRequest(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth validates the bearer token and sets client_id, address, and
// permissions on the request context.
func JWTAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := validateBearer(c, authService)
		if !ok {
			return
		}

		c.Set("clientID", claims.ClientID)
		c.Set("address", claims.Address)
		c.Set("permissions", claims.Permissions)
		c.Next()
	}
}

// AdminAuth restricts a route group to the single administrator
// identity. Attempts by any other authenticated caller fail with a
// forbidden response.
func AdminAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := validateBearer(c, authService)
		if !ok {
			return
		}

		admin := false
		for _, p := range claims.Permissions {
			if p == "admin" {
				admin = true
				break
			}
		}
		if !admin {
			response.Forbidden(c, "administrator access required")
			c.Abort()
			return
		}

		c.Set("clientID", claims.ClientID)
		c.Set("address", claims.Address)
		c.Set("permissions", claims.Permissions)
		c.Next()
	}
}

func validateBearer(c *gin.Context, authService *auth.Service) (*auth.Claims, bool) {
	bearerToken := strings.Split(c.GetHeader("Authorization"), " ")
	if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "bearer") {
		response.Unauthorized(c, "Invalid authorization header")
		c.Abort()
		return nil, false
	}

	claims, err := authService.ValidateToken(bearerToken[1])
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		c.Abort()
		return nil, false
	}
	return claims, true
}
