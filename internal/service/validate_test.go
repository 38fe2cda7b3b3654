package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateExam_AgeRelaxationDerived(t *testing.T) {
	exam, err := ValidateExam(RawExam{
		"title":                "Constable Recruitment",
		"application_end_date": "2026-12-01",
		"max_age_general":      float64(25),
	}, ExtractionContext{})
	require.NoError(t, err)

	assert.Equal(t, 25, exam.MaxAgeGeneral)
	assert.Equal(t, 28, exam.MaxAgeOBC)
	assert.Equal(t, 30, exam.MaxAgeSCST)
	assert.Equal(t, 35, exam.MaxAgePwDGeneral)
}

func TestValidateExam_ExplicitRelaxationKept(t *testing.T) {
	exam, err := ValidateExam(RawExam{
		"title":                "Constable Recruitment",
		"application_end_date": "2026-12-01",
		"max_age_general":      "25 years",
		"max_age_obc":          "27",
	}, ExtractionContext{})
	require.NoError(t, err)

	assert.Equal(t, 27, exam.MaxAgeOBC)
	assert.Zero(t, exam.MaxAgeSCST)
}

func TestValidateExam_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  RawExam
	}{
		{"missing title", RawExam{"application_end_date": "2026-12-01"}},
		{"null title", RawExam{"title": "null", "application_end_date": "2026-12-01"}},
		{"missing deadline", RawExam{"title": "Clerk"}},
		{"bad deadline", RawExam{"title": "Clerk", "application_end_date": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateExam(tt.raw, ExtractionContext{})
			assert.ErrorIs(t, err, ErrInvalidExam)
		})
	}
}

func TestValidateExam_Defaults(t *testing.T) {
	ec := ExtractionContext{SourceID: "bpsc", SourceName: "Bihar PSC", Category: "state", State: "Bihar", SourceURL: "https://bpsc.bih.nic.in/a.pdf"}
	exam, err := ValidateExam(RawExam{
		"title":                "Assistant Engineer",
		"application_end_date": "30/11/2026",
		"category":             "unknown",
		"level":                "galactic",
		"qualification":        "Diploma in Civil Engineering",
		"confidence":           "certain",
		"vacancies":            "1,024 posts",
	}, ec)
	require.NoError(t, err)

	assert.Equal(t, "state", exam.Category)
	assert.Equal(t, "state", exam.Level)
	assert.Equal(t, "Bihar", exam.State)
	assert.Equal(t, "diploma", exam.Qualification)
	assert.Equal(t, "low", exam.Confidence)
	assert.Equal(t, "Bihar PSC", exam.Organization)
	assert.Equal(t, 1024, exam.Vacancies)
	assert.Equal(t, "bpsc", exam.SourceID)
	assert.Equal(t, time.Date(2026, time.November, 30, 0, 0, 0, 0, time.UTC), exam.ApplicationEnd)
	assert.False(t, exam.Verified)
	assert.False(t, exam.Active)
}

func TestNormalizeQualification(t *testing.T) {
	tests := map[string]string{
		"":                             "",
		"Ph.D in Physics":              "phd",
		"Master's Degree":              "postgraduate",
		"Any Graduate":                 "graduate",
		"ITI certificate":              "diploma",
		"Passed competition rules":     "passed competition rules",
		"10+2 or equivalent":           "12th",
		"Matriculation":                "10th",
		"Higher Secondary (12th) pass": "12th",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeQualification(in), in)
	}
}

func TestParseDateLayouts(t *testing.T) {
	want := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2026-03-05", "05-03-2026", "05/03/2026", "5 March 2026", "March 5, 2026", "05.03.2026", "5 Mar 2026"} {
		got, ok := parseDate(s)
		require.True(t, ok, s)
		assert.Equal(t, want, got, s)
	}
}
