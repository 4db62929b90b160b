package main

import "testing"

func TestMatchesSuccessURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.pinterest.com/homefeed/", true},
		{"https://www.pinterest.com/settings/", true},
		{"https://www.pinterest.com/following/", true},
		{"https://www.pinterest.com/ideas/", true},
		{"https://www.pinterest.com/signup/", false},
		{"https://www.pinterest.com/login/", false},
		{"https://www.pinterest.com/password/reset/", false},
		{"https://accounts.google.com/", false},
		{"about:blank", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := matchesSuccessURL(tt.url); got != tt.want {
				t.Errorf("matchesSuccessURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestSignupStateString(t *testing.T) {
	states := map[SignupState]string{
		StateStart:               "start",
		StateFormFilled:          "form_filled",
		StateGenderSelected:      "gender_selected",
		StateLocationConfirmed:   "location_confirmed",
		StateInterestsSelected:   "interests_selected",
		StateVerificationPending: "verification_pending",
		StateVerified:            "verified",
		StateAbandoned:           "abandoned",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("state %d String() = %q, want %q", state, got, want)
		}
	}
}
