package core

import (
	"encoding/json"
	"fmt"
)

// PhishingCriteria is the fixed instruction sent ahead of every record
const PhishingCriteria = `You are a cybersecurity AI assistant. Analyze the provided email and estimate the likelihood
that it is a phishing attempt. Use reasoning grounded in phishing-detection principles.

Evaluate the email against the following points:

1. Urgent or threatening language.
2. Generic greetings instead of personal ones.
3. Poor spelling or grammar.
4. Suspicious or spoofed sender domains (e.g., amaz0n.com vs amazon.com).
5. Requests for personal or sensitive information.
6. Suspicious or mismatched URLs (hover to check domain legitimacy).
7. Unexpected or unusual attachments.
8. Unrealistic offers or promotions.
9. Unsolicited invoices or payment change requests.
10. Empty or poorly structured email bodies (e.g., only images, missing text).

When you respond, return *only* valid JSON with this schema:
{
  "phishing_score": <integer 0-100>,
  "classification": "<legit | uncertain | phishing>",
  "reasoning": "<1-2 concise paragraphs explaining your decision>"
}

Respond concisely and avoid markdown code fences.`

// SystemInstruction is used by providers that take a separate system message
const SystemInstruction = "You are a phishing detection system. Respond only with JSON."

// BuildPrompt renders the criteria followed by the record as indented JSON
func BuildPrompt(record *EmailRecord) (string, error) {
	details, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize email record: %w", err)
	}
	return fmt.Sprintf("%s\n\nEmail details:\n%s", PhishingCriteria, details), nil
}
