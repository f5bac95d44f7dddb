package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns middleware that answers preflight requests and sets CORS
// headers for the allowed origins. An empty list allows every origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-API-Key"},
		MaxAge:         300,
	})
}
