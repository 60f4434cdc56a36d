package service

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
)

// ============================================================
// Deterministic post-processing over a fresh classification
// ============================================================

var (
	// candidateLine matches "2. Calle Mayor 1, Madrid" in a candidates prompt.
	candidateLine = regexp.MustCompile(`^(\d{1,2})\.\s+(.+)$`)

	// candidateChoice matches a bare pick such as "2", "2.", "la 2" or "option 2)".
	candidateChoice = regexp.MustCompile(`^\D{0,12}?(\d{1,2})[.)]?$`)

	markdownLink = regexp.MustCompile(`\[[^\]]*\]\((https?://[^)\s]+)\)`)

	systemMarker = regexp.MustCompile(`(?i)system:`)
)

// sanitize neutralizes role markers before text reaches the model.
func sanitize(text string) string {
	text = strings.ReplaceAll(text, "```", "'''")
	text = systemMarker.ReplaceAllString(text, "sys:")
	return strings.TrimSpace(text)
}

// historyRole keeps conversation turns out of the system channel.
func historyRole(role string) string {
	if role == domain.RoleAssistant {
		return domain.RoleAssistant
	}
	return domain.RoleUser
}

// enrich applies the history-dependent rules in a fixed order.
func (c *Classifier) enrich(cm domain.ClassifiedMessage, message string, history []domain.ConversationTurn) domain.ClassifiedMessage {
	if len(history) == 0 {
		// Nothing was proposed, so nothing can have been confirmed.
		cm.Parameters.DeliveryAddressConfirmed = false
		return cm
	}

	if cm.Intent == domain.IntentOtherGeneral {
		cm = inheritPreviousIntent(cm, history)
	}

	cm = resolveCandidateChoice(cm, message, history)
	cm = gateConfirmation(cm, history)

	switch cm.Intent {
	case domain.IntentDeliveryIssue:
		if tn := trackingFromHistory(history); tn != "" {
			cm.Parameters.TrackingNumber = tn
		}
	case domain.IntentReturnsExchange:
		cm.Parameters.ReturnsWebsiteSent = c.returnsURL != "" && historyContains(history, c.returnsURL)
	}
	return cm
}

// inheritPreviousIntent adopts the latest non catch-all classification found
// in an assistant turn. Fresh slots win; entity-scoped slots of a different
// order or product are dropped together.
func inheritPreviousIntent(cm domain.ClassifiedMessage, history []domain.ConversationTurn) domain.ClassifiedMessage {
	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		if turn.Role != domain.RoleAssistant || !strings.Contains(turn.Content, "intent") {
			continue
		}
		prev, ok := parseStrict(turn.Content)
		if !ok || prev.Intent == domain.IntentOtherGeneral {
			continue
		}

		base := prev.Parameters
		fresh := cm.Parameters
		if fresh.OrderNumber != "" && normalizeOrderNumber(fresh.OrderNumber) != normalizeOrderNumber(base.OrderNumber) {
			base.ClearOrderScope()
		}
		if fresh.ProductName != "" && !strings.EqualFold(fresh.ProductName, base.ProductName) {
			base.ClearProductScope()
		}
		base.DeliveryAddressConfirmed = false

		cm.Intent = prev.Intent
		cm.Parameters = fresh.Overlay(base)
		return cm
	}
	return cm
}

// parseStrict reads a whole turn as a classification blob.
func parseStrict(content string) (domain.ClassifiedMessage, bool) {
	var raw rawClassification
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return domain.ClassifiedMessage{}, false
	}
	return raw.toClassification()
}

// resolveCandidateChoice maps "2" to the second address of a candidates prompt
// sent in the previous assistant turn.
func resolveCandidateChoice(cm domain.ClassifiedMessage, message string, history []domain.ConversationTurn) domain.ClassifiedMessage {
	m := candidateChoice.FindStringSubmatch(strings.TrimSpace(message))
	if m == nil {
		return cm
	}
	last, ok := lastAssistantTurn(history)
	if !ok {
		return cm
	}
	candidates := candidateList(last.Content)
	idx, err := strconv.Atoi(m[1])
	if err != nil || idx < 1 || idx > len(candidates) {
		return cm
	}

	cm.Parameters.NewDeliveryInfo = candidates[idx-1]
	cm.Parameters.DeliveryAddressConfirmed = false
	if cm.Intent == domain.IntentOtherGeneral {
		cm.Intent = domain.IntentChangeDelivery
	}
	return cm
}

// gateConfirmation keeps delivery_address_confirmed only when the message
// answers an assistant turn that proposed exactly one formatted address.
// The confirmed address is the proposed one, whatever the model extracted.
func gateConfirmation(cm domain.ClassifiedMessage, history []domain.ConversationTurn) domain.ClassifiedMessage {
	if !cm.Parameters.DeliveryAddressConfirmed {
		return cm
	}
	last := history[len(history)-1]
	if last.Role != domain.RoleAssistant {
		cm.Parameters.DeliveryAddressConfirmed = false
		return cm
	}
	addr, ok := proposedAddress(last.Content)
	if !ok {
		cm.Parameters.DeliveryAddressConfirmed = false
		return cm
	}
	cm.Parameters.NewDeliveryInfo = addr
	return cm
}

// trackingFromHistory returns the first all-digit path segment of the first
// markdown link that has one, scanning forward.
func trackingFromHistory(history []domain.ConversationTurn) string {
	for _, turn := range history {
		for _, m := range markdownLink.FindAllStringSubmatch(turn.Content, -1) {
			if seg := numericSegment(m[1]); seg != "" {
				return seg
			}
		}
	}
	return ""
}

func numericSegment(rawURL string) string {
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	segments := strings.Split(rest, "/")
	// segments[0] is the host.
	for _, seg := range segments[1:] {
		if seg != "" && isDigits(seg) {
			return seg
		}
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func historyContains(history []domain.ConversationTurn, needle string) bool {
	for _, turn := range history {
		if strings.Contains(turn.Content, needle) {
			return true
		}
	}
	return false
}

func lastAssistantTurn(history []domain.ConversationTurn) (domain.ConversationTurn, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleAssistant {
			return history[i], true
		}
	}
	return domain.ConversationTurn{}, false
}

// normalizeOrderNumber strips "#" and blanks so "#1234" and "1234" compare equal.
func normalizeOrderNumber(s string) string {
	s = strings.ReplaceAll(s, "#", "")
	return strings.Join(strings.Fields(s), "")
}
