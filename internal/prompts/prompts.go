package prompts

import (
	"fmt"
	"strings"
)

// ============================================================================
// Shared Vocabularies
// ============================================================================

// Categories lists the allowed exam category values.
var Categories = []string{
	"central", "state", "banking", "railway", "defence", "psu", "teaching", "police", "other",
}

// Levels lists the allowed exam level values.
var Levels = []string{"national", "state", "district"}

// Qualifications lists the allowed minimum qualification values.
var Qualifications = []string{"10th", "12th", "diploma", "graduate", "postgraduate", "phd", "any"}

// Confidences lists the allowed confidence values.
var Confidences = []string{"high", "medium", "low"}

// ============================================================================
// Extraction Prompts
// ============================================================================

// ExtractionSystemPrompt defines the role and output contract for structured
// exam extraction.
var ExtractionSystemPrompt = `You extract structured data from Indian government recruitment and exam notifications.

Rules:
- Reply with a single JSON object and nothing else. No markdown fences.
- Use null for any field the document does not state. Never guess dates.
- Dates use YYYY-MM-DD.
- category is one of: ` + strings.Join(Categories, ", ") + `.
- level is one of: ` + strings.Join(Levels, ", ") + `.
- qualification is the minimum required, one of: ` + strings.Join(Qualifications, ", ") + `.
- Ages are in completed years; fees are in rupees as integers.
- confidence is one of: ` + strings.Join(Confidences, ", ") + `. Use high only when title, organization and the application end date are stated explicitly.`

// ExtractionSchema is the JSON object the provider must return.
const ExtractionSchema = `{
  "title": string,
  "organization": string|null,
  "post_name": string|null,
  "advertisement_no": string|null,
  "category": string|null,
  "level": string|null,
  "state": string|null,
  "qualification": string|null,
  "vacancies": integer|null,
  "notification_date": "YYYY-MM-DD"|null,
  "application_start_date": "YYYY-MM-DD"|null,
  "application_end_date": "YYYY-MM-DD",
  "exam_date": "YYYY-MM-DD"|null,
  "min_age": integer|null,
  "max_age_general": integer|null,
  "max_age_obc": integer|null,
  "max_age_sc_st": integer|null,
  "max_age_pwd_general": integer|null,
  "fee_general": integer|null,
  "fee_reserved": integer|null,
  "official_url": string|null,
  "confidence": "high"|"medium"|"low"
}`

// ExtractionHints carries what is already known about the document.
type ExtractionHints struct {
	SourceName string
	Category   string
	State      string
	SourceURL  string
	AnchorText string
}

// BuildExtractionPrompt renders the user message for one document.
func BuildExtractionPrompt(h ExtractionHints, text string) string {
	var b strings.Builder
	b.WriteString("Return JSON matching this schema:\n")
	b.WriteString(ExtractionSchema)
	b.WriteString("\n\nKnown context:\n")
	fmt.Fprintf(&b, "- publisher: %s\n", orUnknown(h.SourceName))
	fmt.Fprintf(&b, "- publisher category: %s\n", orUnknown(h.Category))
	if h.State != "" {
		fmt.Fprintf(&b, "- state: %s\n", h.State)
	}
	fmt.Fprintf(&b, "- document url: %s\n", orUnknown(h.SourceURL))
	if h.AnchorText != "" {
		fmt.Fprintf(&b, "- link text: %s\n", h.AnchorText)
	}
	b.WriteString("\nDocument text:\n")
	b.WriteString(text)
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
