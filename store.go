package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AccountRecord is one persisted account.
type AccountRecord struct {
	Timestamp string `json:"timestamp"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Gender    string `json:"gender"`
	Verified  bool   `json:"verified"`
	Proxy     string `json:"proxy,omitempty"`
}

// AccountStore persists created accounts to a JSON array plus a text report
// next to it. One mutex covers both files so concurrent workers never
// interleave a rewrite.
type AccountStore struct {
	jsonPath string
	txtPath  string
	mu       sync.Mutex
}

// NewAccountStore derives both file paths from the JSON output path.
func NewAccountStore(jsonPath string) *AccountStore {
	ext := filepath.Ext(jsonPath)
	return &AccountStore{
		jsonPath: jsonPath,
		txtPath:  strings.TrimSuffix(jsonPath, ext) + ".txt",
	}
}

// Save appends a record to the JSON array and the text report. Records
// without an email or password are rejected.
func (s *AccountStore) Save(rec AccountRecord) error {
	if rec.Email == "" || rec.Password == "" {
		return fmt.Errorf("refusing to save account without email and password")
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().Format("2006-01-02 15:04:05")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.readAll()
	if err != nil {
		return err
	}
	accounts = append(accounts, rec)

	data, err := json.MarshalIndent(accounts, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write account file: %w", err)
	}

	return s.appendReport(rec)
}

// MarkVerified flips the verified flag on the record with the given email.
func (s *AccountStore) MarkVerified(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.readAll()
	if err != nil {
		return err
	}

	found := false
	for i := range accounts {
		if accounts[i].Email == email {
			accounts[i].Verified = true
			found = true
		}
	}
	if !found {
		return fmt.Errorf("no stored account with email %s", email)
	}

	data, err := json.MarshalIndent(accounts, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.jsonPath, data, 0644)
}

// All returns every stored record.
func (s *AccountStore) All() ([]AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

// readAll loads the JSON array, treating a missing file as empty. Caller
// holds the mutex.
func (s *AccountStore) readAll() ([]AccountRecord, error) {
	data, err := os.ReadFile(s.jsonPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read account file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var accounts []AccountRecord
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("account file is corrupt: %w", err)
	}
	return accounts, nil
}

func (s *AccountStore) appendReport(rec AccountRecord) error {
	f, err := os.OpenFile(s.txtPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open report file: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f,
		"\n--- Account Created: %s ---\nEmail: %s\nPassword: %s\nUsername: %s\nName: %s %s\n----------------------------------------\n",
		rec.Timestamp, rec.Email, rec.Password, rec.Username, rec.FirstName, rec.LastName)
	return err
}

// BatchResults is the end-of-run summary written next to the account files.
type BatchResults struct {
	Stats          BatchStats      `json:"stats"`
	Accounts       []AccountRecord `json:"successful_accounts"`
	FailedAttempts []FailedAttempt `json:"failed_attempts"`
}

// FailedAttempt records one profile that never became an account.
type FailedAttempt struct {
	Email   string `json:"email"`
	Error   string `json:"error"`
	Attempt int    `json:"attempt"`
}

// WriteResults writes the batch summary JSON to the given path.
func WriteResults(path string, results BatchResults) error {
	data, err := json.MarshalIndent(results, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
