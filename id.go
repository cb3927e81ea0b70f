package main

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	convIDShort  = 7
	convIDMinLen = 4
)

func newConversationID() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%x", b)
}

// firstLine derives a save title from a prompt.
func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	const maxTitleLen = 72
	if len(line) > maxTitleLen {
		line = line[:maxTitleLen]
	}
	return strings.TrimSpace(line)
}
