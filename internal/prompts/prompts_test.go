package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildExtractionPrompt(t *testing.T) {
	out := BuildExtractionPrompt(ExtractionHints{
		SourceName: "Rajasthan PSC",
		Category:   "state",
		State:      "Rajasthan",
		SourceURL:  "https://rpsc.example/a.pdf",
	}, "RECRUITMENT OF LECTURERS")

	assert.Contains(t, out, `"application_end_date"`)
	assert.Contains(t, out, "- state: Rajasthan")
	assert.Contains(t, out, "- publisher: Rajasthan PSC")
	assert.NotContains(t, out, "link text")
	assert.True(t, strings.HasSuffix(out, "RECRUITMENT OF LECTURERS"))
}

func TestBuildExtractionPrompt_UnknownContext(t *testing.T) {
	out := BuildExtractionPrompt(ExtractionHints{}, "x")
	assert.Contains(t, out, "- publisher: unknown")
	assert.NotContains(t, out, "- state:")
}

func TestSystemPromptListsVocabularies(t *testing.T) {
	for _, v := range append(append([]string{}, Categories...), Qualifications...) {
		assert.Contains(t, ExtractionSystemPrompt, v)
	}
}
