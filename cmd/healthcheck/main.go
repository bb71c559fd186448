// Package main probes the outfitter /health endpoint and exits 0 on HTTP 200,
// 1 otherwise. It exists so distroless container images have a health check
// without shipping curl. Compile with CGO_ENABLED=0 for a static binary.
package main

import (
	"net/http"
	"os"
	"time"
)

func main() {
	port := os.Getenv("OUTFITTER_PORT")
	if port == "" {
		port = "8080"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost:" + port + "/health")
	if err != nil {
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
