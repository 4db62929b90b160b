package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"
)

// UserProfile is everything the signup form needs for one account.
type UserProfile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Gender    string `json:"gender"`
	Age       int    `json:"age"`
	BirthDate string `json:"birth_date"` // MM/DD/YYYY
}

var defaultFirstNames = []string{
	"James", "Mary", "John", "Patricia", "Robert", "Jennifer", "Michael", "Linda",
	"William", "Elizabeth", "David", "Barbara", "Richard", "Susan", "Joseph", "Jessica",
	"Thomas", "Sarah", "Charles", "Karen", "Christopher", "Nancy", "Daniel", "Lisa",
	"Matthew", "Betty", "Anthony", "Margaret", "Mark", "Sandra", "Donald", "Ashley",
	"Steven", "Kimberly", "Paul", "Emily", "Andrew", "Donna", "Joshua", "Michelle",
	"Kenneth", "Dorothy", "Kevin", "Carol", "Brian", "Amanda", "George", "Melissa",
}

var defaultLastNames = []string{
	"Smith", "Johnson", "Williams", "Jones", "Brown", "Davis", "Miller", "Wilson",
	"Moore", "Taylor", "Anderson", "Thomas", "Jackson", "White", "Harris", "Martin",
	"Thompson", "Garcia", "Martinez", "Robinson", "Clark", "Rodriguez", "Lewis", "Lee",
	"Walker", "Hall", "Allen", "Young", "Hernandez", "King", "Wright", "Lopez",
	"Hill", "Scott", "Green", "Adams", "Baker", "Gonzalez", "Nelson", "Carter",
	"Mitchell", "Perez", "Roberts", "Turner", "Phillips", "Campbell", "Parker", "Evans",
}

var defaultEmailDomains = []string{"gmail.com", "yahoo.com", "outlook.com", "hotmail.com"}

const passwordChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"

// ProfileGenerator produces random user profiles. The name pools default to
// the built-in lists and can be replaced from a JSON data file.
type ProfileGenerator struct {
	firstNames   []string
	lastNames    []string
	emailDomains []string
	rng          *rand.Rand
}

// NewProfileGenerator returns a generator seeded from the clock and using the
// built-in name pools.
func NewProfileGenerator() *ProfileGenerator {
	return &ProfileGenerator{
		firstNames:   defaultFirstNames,
		lastNames:    defaultLastNames,
		emailDomains: defaultEmailDomains,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// LoadUserData replaces the name pools from a JSON file of the form
// {"first_names": [...], "last_names": [...], "email_domains": [...]}.
// Missing or empty keys keep their built-in defaults.
func (g *ProfileGenerator) LoadUserData(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read user data file: %w", err)
	}

	var custom struct {
		FirstNames   []string `json:"first_names"`
		LastNames    []string `json:"last_names"`
		EmailDomains []string `json:"email_domains"`
	}
	if err := json.Unmarshal(data, &custom); err != nil {
		return fmt.Errorf("failed to parse user data file: %w", err)
	}

	if len(custom.FirstNames) > 0 {
		g.firstNames = custom.FirstNames
	}
	if len(custom.LastNames) > 0 {
		g.lastNames = custom.LastNames
	}
	if len(custom.EmailDomains) > 0 {
		g.emailDomains = custom.EmailDomains
	}
	return nil
}

// Generate produces a fresh random profile. Email is filled with a
// placeholder address on one of the configured domains; the signup flow
// overwrites it with the disposable-mailbox address before filling the form.
func (g *ProfileGenerator) Generate() UserProfile {
	first := g.firstNames[g.rng.Intn(len(g.firstNames))]
	last := g.lastNames[g.rng.Intn(len(g.lastNames))]
	username := fmt.Sprintf("%s%s%d", strings.ToLower(first), strings.ToLower(last), g.rng.Intn(9999)+1)

	gender := "female"
	if g.rng.Intn(2) == 0 {
		gender = "male"
	}

	age := g.rng.Intn(48) + 18 // 18..65

	return UserProfile{
		FirstName: first,
		LastName:  last,
		Username:  username,
		Email:     fmt.Sprintf("%s@%s", username, g.emailDomains[g.rng.Intn(len(g.emailDomains))]),
		Password:  g.generatePassword(),
		Gender:    gender,
		Age:       age,
		BirthDate: g.GenerateRandomDOB(age),
	}
}

// generatePassword builds a 12-16 character password from letters, digits and
// the !@#$%^&* symbol set.
func (g *ProfileGenerator) generatePassword() string {
	length := g.rng.Intn(5) + 12
	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		sb.WriteByte(passwordChars[g.rng.Intn(len(passwordChars))])
	}
	return sb.String()
}

// GenerateRandomDOB returns a MM/DD/YYYY birth date placing the holder at the
// given age as of today. The day is clamped per month, with February capped
// at 28 outside leap years.
func (g *ProfileGenerator) GenerateRandomDOB(age int) string {
	year := time.Now().Year() - age
	month := g.rng.Intn(12) + 1

	maxDay := daysInMonth(month, year)
	day := g.rng.Intn(maxDay) + 1

	return fmt.Sprintf("%02d/%02d/%04d", month, day, year)
}

func daysInMonth(month, year int) int {
	switch month {
	case 2:
		if isLeapYear(year) {
			return 29
		}
		return 28
	case 4, 6, 9, 11:
		return 30
	default:
		return 31
	}
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
