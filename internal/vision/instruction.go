package vision

import (
	"strings"

	"github.com/segmentio/encoding/json"
)

// Instruction lists every allowed target and asks for a verdict object.
// It never names the target the player was given.
func Instruction(targets []string) string {
	var list strings.Builder
	for i, t := range targets {
		if i > 0 {
			list.WriteString(", ")
		}
		q, _ := json.Marshal(t)
		list.Write(q)
	}
	return "Look at this drawing. The user has drawn a simple, common object. " +
		"The object must be one of the following: " + list.String() + ". " +
		"Identify which object from this list you see in the drawing. " +
		`Respond ONLY with a valid JSON object in this exact format: ` +
		`{"object": "the exact name from the list above (must match exactly, lowercase)", ` +
		`"comment": "a brief, humorous comment about the drawing (max 50 words)"}. ` +
		"The object name MUST be one of the items from the list above. " +
		`If the drawing is unclear or doesn't match any item in the list, use "unknown" as the object name. ` +
		"Make the comment witty and concise."
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// ExtractCandidateText returns the first candidate's text parts joined.
// A body without candidate text is returned unchanged so error payloads
// still reach the verdict parser.
func ExtractCandidateText(body []byte) string {
	var r generateResponse
	if err := json.Unmarshal(body, &r); err != nil || len(r.Candidates) == 0 {
		return string(body)
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return string(body)
	}
	return sb.String()
}
