// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/wagate/internal/log"
)

type envLookupFunc func(key string) (string, bool)

// ParseString reads a string from environment variable or returns default value.
// It logs the source (environment or default) for observability.
func ParseString(key, defaultValue string) string {
	return parseString(os.LookupEnv, log.WithComponent("config"), key, defaultValue)
}

func parseString(lookup envLookupFunc, logger zerolog.Logger, key, defaultValue string) string {
	value, ok := lookup(key)
	if !ok || value == "" {
		logger.Debug().Str("key", key).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	if isSensitiveKey(key) {
		logger.Debug().Str("key", key).Str("source", "environment").Bool("sensitive", true).Msg("using environment variable")
	} else {
		logger.Debug().Str("key", key).Str("value", value).Str("source", "environment").Msg("using environment variable")
	}
	return value
}

// ParseInt reads an integer from environment variable or returns default value.
// Invalid values fall back to the default with a warning.
func ParseInt(key string, defaultValue int) int {
	return parseInt(os.LookupEnv, log.WithComponent("config"), key, defaultValue)
}

func parseInt(lookup envLookupFunc, logger zerolog.Logger, key string, defaultValue int) int {
	return parseTyped(lookup, logger, key, defaultValue, "integer", strconv.Atoi)
}

// ParseDuration reads a duration in Go duration format (e.g. "5s").
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseDuration(os.LookupEnv, log.WithComponent("config"), key, defaultValue)
}

func parseDuration(lookup envLookupFunc, logger zerolog.Logger, key string, defaultValue time.Duration) time.Duration {
	return parseTyped(lookup, logger, key, defaultValue, "duration", time.ParseDuration)
}

// ParseBool reads a boolean. It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	return parseBool(os.LookupEnv, log.WithComponent("config"), key, defaultValue)
}

func parseBool(lookup envLookupFunc, logger zerolog.Logger, key string, defaultValue bool) bool {
	return parseTyped(lookup, logger, key, defaultValue, "boolean", func(v string) (bool, error) {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "on":
			return true, nil
		case "no", "off":
			return false, nil
		}
		return strconv.ParseBool(v)
	})
}

// ParseFloat reads a float64 from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseFloat(os.LookupEnv, log.WithComponent("config"), key, defaultValue)
}

func parseFloat(lookup envLookupFunc, logger zerolog.Logger, key string, defaultValue float64) float64 {
	return parseTyped(lookup, logger, key, defaultValue, "float", func(v string) (float64, error) {
		return strconv.ParseFloat(v, 64)
	})
}

func parseTyped[T any](lookup envLookupFunc, logger zerolog.Logger, key string, defaultValue T, kind string, parse func(string) (T, error)) T {
	v, ok := lookup(key)
	if !ok || v == "" {
		logger.Debug().Str("key", key).Interface("default", defaultValue).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	parsed, err := parse(v)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Interface("default", defaultValue).
			Msgf("invalid %s in environment variable, using default", kind)
		return defaultValue
	}
	logger.Debug().Str("key", key).Interface("value", parsed).Str("source", "environment").Msg("using environment variable")
	return parsed
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "token") || strings.Contains(k, "secret")
}
