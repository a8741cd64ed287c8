package livekit

import (
	"encoding/json"
	"strings"
)

// MatchDispatchRules locates the dispatch rules that belong to a phone number.
//
// The platform offers no first-class link from a number to its rule, so three
// strategies are tried, in decreasing order of confidence:
//  1. trunk linkage: the rule references one of the number's known trunk IDs
//  2. name: the rule name contains the number (with or without the "+")
//  3. metadata: the rule metadata embeds the number, either as a JSON
//     phone_number field or as a raw substring
//
// All call sites go through this one function so the strategy can be hardened
// without touching the orchestrator.
func MatchDispatchRules(rules []SIPDispatchRule, e164 string, trunkIDs []string) []SIPDispatchRule {
	known := make(map[string]struct{}, len(trunkIDs))
	for _, id := range trunkIDs {
		if id != "" {
			known[id] = struct{}{}
		}
	}

	var out []SIPDispatchRule
	for _, r := range rules {
		if ruleMatchesNumber(r, e164, known) {
			out = append(out, r)
		}
	}
	return out
}

func ruleMatchesNumber(r SIPDispatchRule, e164 string, trunkIDs map[string]struct{}) bool {
	for _, id := range r.TrunkIDs {
		if _, ok := trunkIDs[id]; ok {
			return true
		}
	}

	bare := strings.TrimPrefix(e164, "+")
	if bare != "" && strings.Contains(r.Name, bare) {
		return true
	}

	if r.Metadata == "" {
		return false
	}
	var meta struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.Unmarshal([]byte(r.Metadata), &meta); err == nil && meta.PhoneNumber == e164 {
		return true
	}
	return strings.Contains(r.Metadata, e164)
}
