package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testRecord(email string) AccountRecord {
	return AccountRecord{
		Email:     email,
		Password:  "hunter2hunter2",
		Username:  "janedoe42",
		FirstName: "Jane",
		LastName:  "Doe",
		Gender:    "female",
	}
}

func TestAccountStoreSaveAndRead(t *testing.T) {
	dir := t.TempDir()
	store := NewAccountStore(filepath.Join(dir, "accounts.json"))

	if err := store.Save(testRecord("a@example.com")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(testRecord("b@example.com")); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	accounts, err := store.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("got %d accounts, want 2", len(accounts))
	}
	if accounts[0].Email != "a@example.com" || accounts[1].Email != "b@example.com" {
		t.Errorf("order not preserved: %+v", accounts)
	}
	if accounts[0].Timestamp == "" {
		t.Error("timestamp not filled in")
	}

	// The JSON file must be a well-formed array, not concatenated objects
	data, err := os.ReadFile(filepath.Join(dir, "accounts.json"))
	if err != nil {
		t.Fatal(err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("account file is not a JSON array: %v", err)
	}
}

func TestAccountStoreRejectsIncomplete(t *testing.T) {
	store := NewAccountStore(filepath.Join(t.TempDir(), "accounts.json"))

	if err := store.Save(AccountRecord{Password: "x"}); err == nil {
		t.Error("Save without email should fail")
	}
	if err := store.Save(AccountRecord{Email: "x@y.com"}); err == nil {
		t.Error("Save without password should fail")
	}

	accounts, _ := store.All()
	if len(accounts) != 0 {
		t.Errorf("rejected records were persisted: %+v", accounts)
	}
}

func TestAccountStoreTextReport(t *testing.T) {
	dir := t.TempDir()
	store := NewAccountStore(filepath.Join(dir, "accounts.json"))

	if err := store.Save(testRecord("report@example.com")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "accounts.txt"))
	if err != nil {
		t.Fatalf("text report not written: %v", err)
	}
	report := string(data)
	for _, want := range []string{"report@example.com", "hunter2hunter2", "janedoe42", "Jane Doe"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestAccountStoreMarkVerified(t *testing.T) {
	store := NewAccountStore(filepath.Join(t.TempDir(), "accounts.json"))

	if err := store.Save(testRecord("v@example.com")); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkVerified("v@example.com"); err != nil {
		t.Fatalf("MarkVerified: %v", err)
	}

	accounts, _ := store.All()
	if !accounts[0].Verified {
		t.Error("record not marked verified")
	}

	if err := store.MarkVerified("missing@example.com"); err == nil {
		t.Error("MarkVerified on unknown email should fail")
	}
}

func TestAccountStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	store := NewAccountStore(path)
	if err := store.Save(testRecord("c@example.com")); err == nil {
		t.Error("Save over a corrupt file should fail, not silently truncate")
	}
}

func TestWriteResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	results := BatchResults{
		Stats:    BatchStats{Total: 3, Success: 2, Failed: 1},
		Accounts: []AccountRecord{testRecord("r@example.com")},
		FailedAttempts: []FailedAttempt{
			{Email: "f@example.com", Error: "boom", Attempt: 2},
		},
	}
	if err := WriteResults(path, results); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded BatchResults
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("results file not valid JSON: %v", err)
	}
	if decoded.Stats.Success != 2 || len(decoded.FailedAttempts) != 1 {
		t.Errorf("round trip lost data: %+v", decoded)
	}
}
