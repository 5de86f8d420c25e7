package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig holds CORS configuration options.
type CORSConfig struct {
	AllowOrigin  string
	AllowMethods string
	AllowHeaders string
	ExposeHeaders string
}

// DefaultCORSConfig returns the default CORS configuration for streaming endpoints.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:   "*",
		AllowMethods:  "GET, OPTIONS",
		AllowHeaders:  "Content-Type, Accept, Range",
		ExposeHeaders: "Content-Length, Content-Range",
	}
}

// SetCORSHeaders sets CORS headers on a Huma context for streaming responses.
func SetCORSHeaders(ctx huma.Context, config CORSConfig) {
	ctx.SetHeader("Access-Control-Allow-Origin", config.AllowOrigin)
	ctx.SetHeader("Access-Control-Allow-Methods", config.AllowMethods)
	ctx.SetHeader("Access-Control-Allow-Headers", config.AllowHeaders)
	if config.ExposeHeaders != "" {
		ctx.SetHeader("Access-Control-Expose-Headers", config.ExposeHeaders)
	}
}

// SetDefaultCORSHeaders sets the default CORS headers for streaming endpoints.
func SetDefaultCORSHeaders(ctx huma.Context) {
	SetCORSHeaders(ctx, DefaultCORSConfig())
}

// SetRawCORSHeaders sets CORS headers directly on a plain net/http response,
// for the raw chi streaming routes that write a response before any body
// streaming commits (a 302 redirect or a proxied TS/HLS body) and so cannot
// go through a Huma operation.
func SetRawCORSHeaders(w http.ResponseWriter, config CORSConfig) {
	w.Header().Set("Access-Control-Allow-Origin", config.AllowOrigin)
	w.Header().Set("Access-Control-Allow-Methods", config.AllowMethods)
	w.Header().Set("Access-Control-Allow-Headers", config.AllowHeaders)
	if config.ExposeHeaders != "" {
		w.Header().Set("Access-Control-Expose-Headers", config.ExposeHeaders)
	}
}
