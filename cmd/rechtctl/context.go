package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"rechtstreeks/internal/client"
)

const defaultServer = "http://localhost:8080"

type commandContext struct {
	server   *string
	token    *string
	jsonOut  *bool
	interval *time.Duration
}

func newCommandContext(server, token *string, jsonOut *bool, interval *time.Duration) *commandContext {
	return &commandContext{server: server, token: token, jsonOut: jsonOut, interval: interval}
}

func (c *commandContext) serverURL() string {
	if v := strings.TrimSpace(*c.server); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv("RECHTSTREEKS_URL")); v != "" {
		return v
	}
	return defaultServer
}

func (c *commandContext) client() (*client.Client, error) {
	token := strings.TrimSpace(*c.token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("RECHTSTREEKS_TOKEN"))
	}
	if token == "" {
		return nil, errors.New("no API token: pass --token or set RECHTSTREEKS_TOKEN")
	}
	return client.New(c.serverURL(), token), nil
}

func (c *commandContext) json() bool {
	return c.jsonOut != nil && *c.jsonOut
}

// pollInterval resolves --interval, then $RECHTSTREEKS_POLL_INTERVAL_MS, then the client default.
func (c *commandContext) pollInterval() (time.Duration, error) {
	if c.interval != nil && *c.interval > 0 {
		return *c.interval, nil
	}
	raw := strings.TrimSpace(os.Getenv("RECHTSTREEKS_POLL_INTERVAL_MS"))
	if raw == "" {
		return client.DefaultPollInterval, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid RECHTSTREEKS_POLL_INTERVAL_MS %q: want a positive number of milliseconds", raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
