// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

// runHealthcheckCLI checks the ops API of a running daemon, for container health checks.
func runHealthcheckCLI(args []string) int {
	fs := flag.NewFlagSet("wagate healthcheck", flag.ContinueOnError)
	mode := fs.String("mode", "ready", "check: ready (/readyz) or live (/healthz)")
	addr := fs.String("addr", "localhost:8089", "ops API address to check")
	timeout := fs.Duration("timeout", 5*time.Second, "check timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var path string
	switch *mode {
	case "ready":
		path = "/readyz"
	case "live":
		path = "/healthz"
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q (want ready or live)\n", *mode)
		return 2
	}

	client := http.Client{Timeout: *timeout}
	resp, err := client.Get("http://" + *addr + path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s check failed: %v\n", *mode, err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "%s check failed: %s returned %s\n", *mode, path, resp.Status)
		return 1
	}
	fmt.Printf("%s check ok\n", *mode)
	return 0
}
