package main

import (
	"errors"
	"testing"
)

func TestExtractVerificationLinkDirect(t *testing.T) {
	body := `Welcome! Confirm here: https://www.pinterest.com/email/verify?code=abc123 thanks`
	link, err := ExtractVerificationLink(body)
	if err != nil {
		t.Fatalf("ExtractVerificationLink: %v", err)
	}
	if link != "https://www.pinterest.com/email/verify?code=abc123" {
		t.Errorf("got %q", link)
	}
}

func TestExtractVerificationLinkAutologin(t *testing.T) {
	body := `Click https://www.pinterest.com/secure/autologin/?next=%2Fverify to continue`
	link, err := ExtractVerificationLink(body)
	if err != nil {
		t.Fatalf("ExtractVerificationLink: %v", err)
	}
	if link != "https://www.pinterest.com/secure/autologin/?next=%2Fverify" {
		t.Errorf("got %q", link)
	}
}

func TestExtractVerificationLinkDirectBeatsRedirect(t *testing.T) {
	body := `tracking: https://tracker.example.com/c?target=https%3A%2F%2Fwww.pinterest.com%2Fsecure%2Fautologin%2F%3Fnext%3Dverify
	direct: https://www.pinterest.com/email/verify?code=def456`
	link, err := ExtractVerificationLink(body)
	if err != nil {
		t.Fatalf("ExtractVerificationLink: %v", err)
	}
	if link != "https://www.pinterest.com/email/verify?code=def456" {
		t.Errorf("direct link should win, got %q", link)
	}
}

func TestExtractVerificationLinkEncodedRedirect(t *testing.T) {
	body := `https://tracker.example.com/c?target=https%3A%2F%2Fwww.pinterest.com%2Fsecure%2Fautologin%2F%3Fnext%3D%2Fverify`
	link, err := ExtractVerificationLink(body)
	if err != nil {
		t.Fatalf("ExtractVerificationLink: %v", err)
	}
	if link != "https://www.pinterest.com/secure/autologin/?next=/verify" {
		t.Errorf("got %q", link)
	}
}

func TestExtractVerificationLinkCodeUIDFallback(t *testing.T) {
	body := `Your code is code=0123456789abcdef0123456789abcdef and uid=424242.`
	link, err := ExtractVerificationLink(body)
	if err != nil {
		t.Fatalf("ExtractVerificationLink: %v", err)
	}
	want := "https://www.pinterest.com/verify?code=0123456789abcdef0123456789abcdef&uid=424242"
	if link != want {
		t.Errorf("got %q, want %q", link, want)
	}
}

func TestExtractVerificationLinkFromHTMLAnchor(t *testing.T) {
	body := `<html><body><a href="https://www.pinterest.com/email/verify?code=xyz">Verify your email</a></body></html>`
	link, err := ExtractVerificationLink(body)
	if err != nil {
		t.Fatalf("ExtractVerificationLink: %v", err)
	}
	if link != "https://www.pinterest.com/email/verify?code=xyz" {
		t.Errorf("got %q", link)
	}
}

func TestExtractVerificationLinkNotFound(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"unrelated url", "see https://example.com/verify for details"},
		{"pinterest without verify", "browse https://www.pinterest.com/ideas/ today"},
		{"code without uid", "code=0123456789abcdef0123456789abcdef only"},
		{"short code", "code=abc123 uid=42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractVerificationLink(tt.body)
			if !errors.Is(err, ErrNoVerificationLink) {
				t.Errorf("err = %v, want ErrNoVerificationLink", err)
			}
		})
	}
}
