package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

const (
	verificationSender  = "pinterest@account.pinterest.com"
	verificationSubject = "Verify your email"
)

// imapProviders maps an email domain to its IMAP endpoint.
var imapProviders = map[string]string{
	"gmail.com":   "imap.gmail.com:993",
	"yahoo.com":   "imap.mail.yahoo.com:993",
	"outlook.com": "outlook.office365.com:993",
	"hotmail.com": "outlook.office365.com:993",
}

// ServerForProvider maps a provider name (gmail, yahoo, outlook, hotmail)
// to its IMAP endpoint.
func ServerForProvider(name string) (string, bool) {
	server, ok := imapProviders[strings.ToLower(name)+".com"]
	return server, ok
}

// IMAPVerifier fetches the verification link from a real mailbox over IMAP.
// Used when accounts are registered on an address the operator controls
// instead of a disposable one.
type IMAPVerifier struct {
	email    string
	password string
	server   string
	logger   Logger
	policy   RetryPolicy
}

// NewIMAPVerifier resolves the IMAP server from the address's domain.
// For providers outside the built-in table pass an explicit host:port
// via server; otherwise leave it empty.
func NewIMAPVerifier(email, password, server string, logger Logger) (*IMAPVerifier, error) {
	if server == "" {
		at := strings.LastIndex(email, "@")
		if at < 0 {
			return nil, fmt.Errorf("invalid email address %q", email)
		}
		domain := strings.ToLower(email[at+1:])
		var ok bool
		server, ok = imapProviders[domain]
		if !ok {
			return nil, fmt.Errorf("no known IMAP server for domain %s", domain)
		}
	}

	return &IMAPVerifier{
		email:    email,
		password: password,
		server:   server,
		logger:   logger,
		policy:   RetryPolicy{MaxAttempts: 20, Interval: 15 * time.Second},
	}, nil
}

// FetchVerificationLink polls the mailbox until the verification email shows
// up and returns its extracted link. Each attempt opens a fresh connection
// so a dropped session never wedges the poll loop.
func (v *IMAPVerifier) FetchVerificationLink(ctx context.Context) (string, error) {
	var link string
	err := v.policy.Run(ctx, func(attempt int) (bool, error) {
		v.logger.Log("checking mailbox %s (attempt %d/%d)", v.email, attempt+1, v.policy.MaxAttempts)

		found, err := v.checkOnce()
		if err != nil {
			return false, err
		}
		if found == "" {
			return false, nil
		}
		link = found
		return true, nil
	})
	if err != nil {
		return "", err
	}
	if link == "" {
		return "", ErrNoVerificationLink
	}
	return link, nil
}

func (v *IMAPVerifier) checkOnce() (string, error) {
	c, err := client.DialTLS(v.server, nil)
	if err != nil {
		return "", fmt.Errorf("IMAP dial failed: %w", err)
	}
	defer c.Logout()

	if err := c.Login(v.email, v.password); err != nil {
		return "", NewFatalError(fmt.Errorf("IMAP login failed for %s: %w", v.email, err))
	}

	if _, err := c.Select("INBOX", true); err != nil {
		return "", fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("FROM", verificationSender)
	criteria.Header.Add("SUBJECT", verificationSubject)

	ids, err := c.Search(criteria)
	if err != nil {
		return "", fmt.Errorf("IMAP search failed: %w", err)
	}
	if len(ids) == 0 {
		return "", nil
	}

	// Newest matching message
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(ids[len(ids)-1])

	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, []imap.FetchItem{section.FetchItem()}, messages)
	}()
	if err := <-done; err != nil {
		return "", fmt.Errorf("IMAP fetch failed: %w", err)
	}

	msg := <-messages
	if msg == nil {
		return "", fmt.Errorf("server returned no message")
	}
	body := msg.GetBody(section)
	if body == nil {
		return "", fmt.Errorf("server returned no message body")
	}

	return extractLinkFromMessage(body)
}

// extractLinkFromMessage walks the MIME parts of a raw message looking for
// the verification link in any text part.
func extractLinkFromMessage(r io.Reader) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse message: %w", err)
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch p.Header.(type) {
		case *mail.InlineHeader:
			content, err := io.ReadAll(p.Body)
			if err != nil {
				continue
			}
			if link, err := ExtractVerificationLink(string(content)); err == nil {
				return link, nil
			}
			if link := scanDocumentLinks(string(content)); link != "" {
				return link, nil
			}
		case *mail.AttachmentHeader:
		}
	}

	return "", ErrNoVerificationLink
}

// scanDocumentLinks is the HTML fallback: parse the part as a document and
// test each anchor individually.
func scanDocumentLinks(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}

	var link string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if link != "" {
			return
		}
		if href, ok := s.Attr("href"); ok && isVerificationURL(href) {
			link = href
		}
	})
	return link
}

// IsAuthError reports whether the error came from a failed IMAP login, which
// retrying will never fix.
func IsAuthError(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal) && strings.Contains(err.Error(), "IMAP login failed")
}
