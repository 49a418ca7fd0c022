// Package videoid extracts YouTube video identifiers from free-form URLs.
package videoid

import "regexp"

// Len is the fixed length of a video identifier.
const Len = 11

var (
	queryRe = regexp.MustCompile(`[?&]v=([0-9A-Za-z_-]{11})(?:[^0-9A-Za-z_-]|$)`)
	pathRe  = regexp.MustCompile(`/([0-9A-Za-z_-]{11})(?:[^0-9A-Za-z_-]|$)`)
	idRe    = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
)

// Extract returns the identifier found after a v= query parameter or a path
// separator. The v= form wins when both are present. A token longer than the
// identifier is not a match.
func Extract(rawURL string) (string, bool) {
	if m := queryRe.FindStringSubmatch(rawURL); m != nil {
		return m[1], true
	}
	if m := pathRe.FindStringSubmatch(rawURL); m != nil {
		return m[1], true
	}
	return "", false
}

// Valid reports whether id is a well-formed identifier on its own.
func Valid(id string) bool {
	return idRe.MatchString(id)
}

// WatchURL is the canonical watch page for id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// Normalize accepts either a URL or a bare identifier and returns the URL form
// callers should hand to the pipeline.
func Normalize(input string) string {
	if Valid(input) {
		return WatchURL(input)
	}
	return input
}
