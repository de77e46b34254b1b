package models

import (
	"regexp"
	"strings"
)

// ApplyAction is an embedded call-to-action the assistant can attach to its
// final recommendation. It is derived from the message content, not stored
// separately: the model emits {{apply|<bank name>|<loan type>}} markers.
type ApplyAction struct {
	BankName string `json:"bank_name"`
	LoanType string `json:"loan_type"`
}

var applyMarker = regexp.MustCompile(`\{\{apply\|([^|{}]+)\|([^|{}]+)\}\}`)

// ExtractApplyActions derives apply actions from assistant content.
func ExtractApplyActions(content string) []ApplyAction {
	matches := applyMarker.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	actions := make([]ApplyAction, 0, len(matches))
	for _, m := range matches {
		actions = append(actions, ApplyAction{
			BankName: strings.TrimSpace(m[1]),
			LoanType: strings.TrimSpace(m[2]),
		})
	}
	return actions
}

// StripApplyMarkers removes apply markers from display content.
func StripApplyMarkers(content string) string {
	return strings.TrimSpace(applyMarker.ReplaceAllString(content, ""))
}
