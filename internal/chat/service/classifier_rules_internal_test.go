package service

import (
	"testing"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"

	"github.com/stretchr/testify/assert"
)

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, true},
		{"prose around", `ok {"a":{"b":2}} done {"c":3}`, `{"a":{"b":2}}`, true},
		{"brace in string", `x {"a":"}{"} y`, `{"a":"}{"}`, true},
		{"escaped quote", `{"a":"say \"}\" please"}`, `{"a":"say \"}\" please"}`, true},
		{"unbalanced", `{"a":{`, "", false},
		{"none", `no json here`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := firstJSONObject(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "'''code'''", sanitize("```code```"))
	assert.Equal(t, "sys: do this", sanitize("  System: do this \n"))
	assert.Equal(t, "a sys: b sys: c", sanitize("a system: b SYSTEM: c"))
}

func TestNumericSegment(t *testing.T) {
	assert.Equal(t, "12345", numericSegment("https://carrier.example/track/12345"))
	assert.Equal(t, "42", numericSegment("https://example.com/a/42/b/77?x=1"))
	assert.Equal(t, "", numericSegment("https://8080.example.com/track/abc12"))
	assert.Equal(t, "", numericSegment("https://example.com/"))
}

func TestNormalizeOrderNumber(t *testing.T) {
	assert.Equal(t, "1234", normalizeOrderNumber("#1234"))
	assert.Equal(t, "1234", normalizeOrderNumber(" # 12 34 "))
}

func TestAddressPromptsRoundTrip(t *testing.T) {
	for _, lang := range []domain.Language{domain.LanguageEnglish, domain.LanguageSpanish} {
		t.Run(string(lang), func(t *testing.T) {
			prompt := addressConfirmPrompt(lang, "Calle de Alcalá 1, 28014 Madrid, Spain")
			addr, ok := proposedAddress(prompt)
			assert.True(t, ok)
			assert.Equal(t, "Calle de Alcalá 1, 28014 Madrid, Spain", addr)

			list := addressCandidatesPrompt(lang, []string{"A 1, Madrid", "B 2, Sevilla", "C 3, Bilbao"})
			assert.Equal(t, []string{"A 1, Madrid", "B 2, Sevilla", "C 3, Bilbao"}, candidateList(list))
		})
	}
}

func TestCandidateList_RequiresHeader(t *testing.T) {
	assert.Nil(t, candidateList("1. First step\n2. Second step"))
}

func TestProposedAddress_NotAProposal(t *testing.T) {
	_, ok := proposedAddress(replyAskAddress.in(domain.LanguageEnglish))
	assert.False(t, ok)
}

func TestCandidateChoice(t *testing.T) {
	for _, in := range []string{"2", "2.", "la 2", "option 2)", "número 2"} {
		assert.True(t, candidateChoice.MatchString(in), in)
	}
	for _, in := range []string{"Calle Mayor 123", "28013", "yes"} {
		assert.False(t, candidateChoice.MatchString(in), in)
	}
}

func TestHistoryRole(t *testing.T) {
	assert.Equal(t, domain.RoleAssistant, historyRole(domain.RoleAssistant))
	assert.Equal(t, domain.RoleUser, historyRole(domain.RoleUser))
	assert.Equal(t, domain.RoleUser, historyRole(domain.RoleSystem))
	assert.Equal(t, domain.RoleUser, historyRole(""))
}
