package main

import (
	"strings"

	"github.com/google/uuid"

	"boxim-bot/internal/config"
)

// instanceKey names the single-instance lock for one bot account. Two
// processes logged in as the same account force each other offline, so the
// lock is per account and service rather than per machine.
func instanceKey(opts config.Options) string {
	account := strings.ToLower(strings.TrimSpace(opts.Username)) + "@" +
		strings.TrimRight(strings.ToLower(strings.TrimSpace(opts.BaseURL)), "/")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(account)).String()
}
