package service

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/timmy/examwatch/internal/domain"
	"github.com/timmy/examwatch/internal/prompts"
)

// ErrInvalidExam is returned when raw fields cannot form an exam record.
var ErrInvalidExam = errors.New("invalid exam")

// Age relaxations applied when only the general upper age limit is known.
const (
	relaxationOBC  = 3
	relaxationSCST = 5
	relaxationPwD  = 10
)

// dateLayouts are tried in order when parsing provider dates.
var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2 January 2006",
	"January 2, 2006",
	"02.01.2006",
	"2 Jan 2006",
}

var digitsRe = regexp.MustCompile(`\d+`)

// ValidateExam sanitizes provider output into an exam record. Title and a
// parseable application end date are required; enumerated fields fall back
// to defaults; numeric strings are coerced. The returned exam is unverified
// and inactive.
func ValidateExam(raw RawExam, ec ExtractionContext) (*domain.Exam, error) {
	title := str(raw, "title")
	if title == "" {
		return nil, fmt.Errorf("%w: missing title", ErrInvalidExam)
	}

	endRaw := str(raw, "application_end_date")
	if endRaw == "" {
		return nil, fmt.Errorf("%w: missing application_end_date", ErrInvalidExam)
	}
	end, ok := parseDate(endRaw)
	if !ok {
		return nil, fmt.Errorf("%w: unparseable application_end_date %q", ErrInvalidExam, endRaw)
	}

	state := str(raw, "state")
	if state == "" {
		state = ec.State
	}

	defaultLevel := "national"
	if ec.State != "" {
		defaultLevel = "state"
	}

	category := oneOf(str(raw, "category"), prompts.Categories, "")
	if category == "" {
		category = oneOf(ec.Category, prompts.Categories, "other")
	}

	exam := &domain.Exam{
		Title:            title,
		Organization:     str(raw, "organization"),
		PostName:         str(raw, "post_name"),
		AdvertisementNo:  str(raw, "advertisement_no"),
		Category:         category,
		Level:            oneOf(str(raw, "level"), prompts.Levels, defaultLevel),
		State:            state,
		Qualification:    oneOf(normalizeQualification(str(raw, "qualification")), prompts.Qualifications, "any"),
		Vacancies:        num(raw, "vacancies"),
		NotificationDate: optDate(raw, "notification_date"),
		ApplicationStart: optDate(raw, "application_start_date"),
		ApplicationEnd:   end,
		ExamDate:         optDate(raw, "exam_date"),
		MinAge:           num(raw, "min_age"),
		MaxAgeGeneral:    num(raw, "max_age_general"),
		MaxAgeOBC:        num(raw, "max_age_obc"),
		MaxAgeSCST:       num(raw, "max_age_sc_st"),
		MaxAgePwDGeneral: num(raw, "max_age_pwd_general"),
		FeeGeneral:       num(raw, "fee_general"),
		FeeReserved:      num(raw, "fee_reserved"),
		OfficialURL:      str(raw, "official_url"),
		SourceID:         ec.SourceID,
		SourceURL:        ec.SourceURL,
		Confidence:       oneOf(str(raw, "confidence"), prompts.Confidences, domain.ConfidenceLow),
	}
	if exam.Organization == "" {
		exam.Organization = ec.SourceName
	}

	if exam.MaxAgeGeneral > 0 && exam.MaxAgeOBC == 0 && exam.MaxAgeSCST == 0 && exam.MaxAgePwDGeneral == 0 {
		exam.MaxAgeOBC = exam.MaxAgeGeneral + relaxationOBC
		exam.MaxAgeSCST = exam.MaxAgeGeneral + relaxationSCST
		exam.MaxAgePwDGeneral = exam.MaxAgeGeneral + relaxationPwD
	}

	return exam, nil
}

func str(raw RawExam, key string) string {
	switch v := raw[key].(type) {
	case string:
		s := strings.TrimSpace(v)
		if strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
			return ""
		}
		return s
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// num coerces a JSON number or a string such as "1,250" or "Rs. 100" to an
// int. Anything else is 0.
func num(raw RawExam, key string) int {
	switch v := raw[key].(type) {
	case float64:
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int(v)
	case string:
		m := digitsRe.FindString(strings.ReplaceAll(v, ",", ""))
		if m == "" {
			return 0
		}
		n, err := strconv.Atoi(m)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func optDate(raw RawExam, key string) *time.Time {
	if t, ok := parseDate(str(raw, key)); ok {
		return &t
	}
	return nil
}

func oneOf(v string, allowed []string, fallback string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return a
		}
	}
	return fallback
}

// normalizeQualification maps common spellings onto the enumerated values.
func normalizeQualification(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	switch {
	case q == "":
		return ""
	case strings.Contains(q, "ph.d") || q == "phd" || strings.Contains(q, "doctor"):
		return "phd"
	case strings.Contains(q, "post") || strings.Contains(q, "master"):
		return "postgraduate"
	case strings.Contains(q, "graduat") || strings.Contains(q, "bachelor") || strings.Contains(q, "degree"):
		return "graduate"
	case strings.Contains(q, "diploma") || hasWord(q, "iti"):
		return "diploma"
	case strings.Contains(q, "12") || strings.Contains(q, "10+2") || strings.Contains(q, "higher secondary") || strings.Contains(q, "intermediate"):
		return "12th"
	case strings.Contains(q, "10") || strings.Contains(q, "matric"):
		return "10th"
	}
	return q
}

func hasWord(s, word string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '/' || r == '.' }) {
		if f == word {
			return true
		}
	}
	return false
}
