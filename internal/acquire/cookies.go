package acquire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const defaultCookieDomain = ".youtube.com"

// LoadCookies interprets source as a Netscape cookies.txt path when such a
// file exists, otherwise as a raw "name=value; name2=value2" Cookie header.
func LoadCookies(source string) ([]*http.Cookie, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("cookies: empty credential")
	}
	if fi, err := os.Stat(source); err == nil && !fi.IsDir() {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("cookies: open %s: %w", source, err)
		}
		defer f.Close()
		return ParseNetscape(f)
	}
	cookies := ParseCookieHeader(source)
	if len(cookies) == 0 {
		return nil, errors.New("cookies: credential is neither a readable file nor a cookie header")
	}
	return cookies, nil
}

// ParseNetscape reads the tab-separated cookies.txt format written by
// browser export extensions and yt-dlp. Expired cookies are skipped.
func ParseNetscape(r io.Reader) ([]*http.Cookie, error) {
	var cookies []*http.Cookie
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	now := time.Now()
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		httpOnly := false
		if rest, ok := strings.CutPrefix(text, "#HttpOnly_"); ok {
			text = rest
			httpOnly = true
		}
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 7 {
			return nil, fmt.Errorf("cookies: line %d: want 7 tab-separated fields, got %d", line, len(fields))
		}
		c := &http.Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    strings.Join(fields[6:], "\t"),
			HttpOnly: httpOnly,
		}
		if exp, err := strconv.ParseInt(fields[4], 10, 64); err == nil && exp > 0 {
			c.Expires = time.Unix(exp, 0)
			if c.Expires.Before(now) {
				continue
			}
		}
		if c.Name == "" {
			continue
		}
		cookies = append(cookies, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cookies: read: %w", err)
	}
	if len(cookies) == 0 {
		return nil, errors.New("cookies: file holds no usable cookies")
	}
	return cookies, nil
}

// ParseCookieHeader splits a raw Cookie header into cookies scoped to the
// video host.
func ParseCookieHeader(header string) []*http.Cookie {
	header = strings.TrimPrefix(strings.TrimSpace(header), "Cookie:")
	var cookies []*http.Cookie
	for pair := range strings.SplitSeq(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.ContainsAny(name, " \t/") {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:   name,
			Value:  strings.TrimSpace(value),
			Domain: defaultCookieDomain,
			Path:   "/",
			Secure: true,
		})
	}
	return cookies
}

// NewCookieJar loads cookies into a jar keyed by their own domains.
func NewCookieJar(cookies []*http.Cookie) (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookies: jar: %w", err)
	}
	byHost := map[string][]*http.Cookie{}
	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			host = strings.TrimPrefix(defaultCookieDomain, ".")
		}
		byHost[host] = append(byHost[host], c)
	}
	for host, cs := range byHost {
		jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, cs)
	}
	return jar, nil
}
