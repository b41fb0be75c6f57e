// Package health provides shared types for health check responses.
package health

// Response represents the API health response structure.
type Response struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}
