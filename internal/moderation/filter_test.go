package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck_BlockedTerms(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "kill yourself"})

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"exact word", "badword", true, "badword"},
		{"case insensitive", "BaDwOrD.", true, "badword"},
		{"leetspeak", "b@dw0rd", true, "badword"},
		{"substring is fine", "mybadwordish", false, ""},
		{"phrase", "you should KILL yourself", true, "kill yourself"},
		{"split phrase", "kill and yourself", false, ""},
		{"clean", "hello there", false, ""},
		{"empty", "   ", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.Check(tt.input)
			assert.Equal(t, tt.blocked, res.Blocked)
			if tt.blocked {
				assert.Equal(t, tt.term, res.Term)
				assert.Equal(t, "blocked_keyword", res.Reason)
			}
		})
	}
}

func TestCheck_SpamPatterns(t *testing.T) {
	f := NewFilterWithTerms(nil)

	tests := []struct {
		name  string
		input string
		term  string
	}{
		{"http link", "look https://example.com", "url"},
		{"telegram link", "join t.me/somechannel", "url"},
		{"phone", "call me +380 67 123 4567", "phone"},
		{"char flood", "heyyyyyyyyyy", "char_flood"},
		{"word flood", "spam spam spam spam", "word_flood"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.Check(tt.input)
			assert.True(t, res.Blocked)
			assert.Equal(t, "spam_pattern", res.Reason)
			assert.Equal(t, tt.term, res.Term)
		})
	}
}

func TestCheck_CleanMessages(t *testing.T) {
	f := NewFilter()

	for _, msg := range []string{
		"привіт, як справи?",
		"I have version 2.0 installed",
		"we were 100 people",
		"what music do you like?",
	} {
		assert.False(t, f.Check(msg).Blocked, msg)
	}
}
