// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "regexp"

const maxSessionIDLen = 128

var sessionIDRe = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// IsSafeSessionID returns true if the ID is safe for channel names, store keys and URLs.
func IsSafeSessionID(id string) bool {
	return len(id) <= maxSessionIDLen && sessionIDRe.MatchString(id)
}
