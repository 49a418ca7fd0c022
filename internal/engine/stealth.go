package engine

import (
	"maps"

	stealth "github.com/anatolykoptev/go-stealth"
)

// ChromeHeaders returns a fresh copy of desktop Chrome request headers.
func ChromeHeaders() map[string]string { return maps.Clone(stealth.ChromeHeaders()) }

// RandomUserAgent returns a randomized desktop browser user agent.
func RandomUserAgent() string { return stealth.RandomUserAgent() }
