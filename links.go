package main

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	urlPattern      = regexp.MustCompile(`https?://[^\s"'<>\)\]]+`)
	redirectPattern = regexp.MustCompile(`target=(https?%3A%2F%2F[^&\s"'<>]+)`)
	codeUIDPattern  = regexp.MustCompile(`code=([a-f0-9]{32})`)
	uidPattern      = regexp.MustCompile(`uid=(\d+)`)
)

// ExtractVerificationLink pulls the account verification URL out of a
// verification email body (plain text or HTML). Candidates are checked in
// precedence order:
//
//  1. a direct pinterest.com URL whose path contains "verify"
//  2. a tracking redirect carrying a percent-encoded target URL that
//     contains both "autologin" and "verify" once decoded
//  3. bare code= and uid= parameters, reassembled into the canonical
//     verify URL
//
// ErrNoVerificationLink is returned when nothing matches.
func ExtractVerificationLink(body string) (string, error) {
	candidates := urlPattern.FindAllString(body, -1)
	candidates = append(candidates, extractHrefs(body)...)

	for _, candidate := range candidates {
		if isVerificationURL(candidate) {
			return candidate, nil
		}
	}

	for _, m := range redirectPattern.FindAllStringSubmatch(body, -1) {
		decoded, err := url.QueryUnescape(m[1])
		if err != nil {
			continue
		}
		if strings.Contains(decoded, "autologin") && strings.Contains(decoded, "verify") {
			return decoded, nil
		}
	}

	codeMatch := codeUIDPattern.FindStringSubmatch(body)
	uidMatch := uidPattern.FindStringSubmatch(body)
	if codeMatch != nil && uidMatch != nil {
		return fmt.Sprintf("https://www.pinterest.com/verify?code=%s&uid=%s", codeMatch[1], uidMatch[1]), nil
	}

	return "", ErrNoVerificationLink
}

func isVerificationURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if !strings.Contains(parsed.Hostname(), "pinterest.com") {
		return false
	}
	path := strings.ToLower(parsed.Path)
	return strings.Contains(path, "verify") || strings.Contains(path, "autologin")
}

// extractHrefs collects anchor targets from an HTML body. Non-HTML bodies
// simply yield no anchors.
func extractHrefs(body string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}
