package service

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/timmy/examwatch/internal/domain"
)

const dateFormat = "02 Jan 2006"

var emailTemplate = template.Must(template.New("email").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.Format(dateFormat) },
}).Parse(`<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222">
<p>Hi {{.Name}},</p>
<p>{{.Intro}}</p>
<table cellpadding="6" style="border-collapse:collapse">
<tr><th align="left">Exam</th><th align="left">Organization</th><th align="left">Last date</th></tr>
{{range .Exams}}<tr>
<td>{{if .URL}}<a href="{{.URL}}">{{.Title}}</a>{{else}}{{.Title}}{{end}}</td>
<td>{{.Organization}}</td>
<td>{{date .ApplicationEnd}}</td>
</tr>
{{end}}</table>
<p><a href="{{.SiteURL}}">Open your dashboard</a></p>
</body></html>`))

// Renderer builds the subject and body for a queue entry.
type Renderer struct {
	siteURL string
	now     func() time.Time
}

// NewRenderer creates a Renderer. Exam links point at siteURL.
func NewRenderer(siteURL string) *Renderer {
	return &Renderer{siteURL: strings.TrimSuffix(siteURL, "/"), now: time.Now}
}

type renderExam struct {
	Title          string
	Organization   string
	ApplicationEnd time.Time
	URL            string
}

// Render returns the message for entry covering exams, which must be
// ordered by application deadline.
func (r *Renderer) Render(entry *domain.NotificationQueueEntry, exams []domain.Exam) (Message, error) {
	if len(exams) == 0 {
		return Message{}, fmt.Errorf("no exams to render for %s", entry.ID)
	}

	subject, intro := r.headline(entry.Kind, exams)

	name := entry.Name
	if name == "" {
		name = "there"
	}

	items := make([]renderExam, 0, len(exams))
	var text strings.Builder
	text.WriteString(intro + "\n\n")
	for _, e := range exams {
		url := ""
		if r.siteURL != "" {
			url = r.siteURL + "/exams/" + e.ID
		}
		items = append(items, renderExam{
			Title:          e.Title,
			Organization:   e.Organization,
			ApplicationEnd: e.ApplicationEnd,
			URL:            url,
		})
		fmt.Fprintf(&text, "- %s (%s), last date %s\n", e.Title, e.Organization, e.ApplicationEnd.Format(dateFormat))
	}

	var html bytes.Buffer
	err := emailTemplate.Execute(&html, map[string]interface{}{
		"Name":    name,
		"Intro":   intro,
		"Exams":   items,
		"SiteURL": r.siteURL,
	})
	if err != nil {
		return Message{}, fmt.Errorf("render email: %w", err)
	}

	return Message{
		To:      entry.Email,
		ToName:  entry.Name,
		Subject: subject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

// headline picks the subject and opening line for a notification kind.
func (r *Renderer) headline(kind domain.NotificationKind, exams []domain.Exam) (string, string) {
	first := exams[0]
	n := len(exams)

	switch kind {
	case domain.KindDeadlineReminder:
		if n == 1 {
			days := daysUntil(r.now(), first.ApplicationEnd)
			return fmt.Sprintf("Last date approaching: %s closes %s", first.Title, closesIn(days)),
				fmt.Sprintf("Applications for %s close on %s.", first.Title, first.ApplicationEnd.Format(dateFormat))
		}
		return fmt.Sprintf("%d exam deadlines approaching, earliest %s", n, first.ApplicationEnd.Format(dateFormat)),
			fmt.Sprintf("%d exams you are eligible for close soon.", n)
	case domain.KindNewExam:
		if n == 1 {
			return fmt.Sprintf("New exam notification: %s", first.Title),
				fmt.Sprintf("A new notification matching your profile was published: %s.", first.Title)
		}
		return fmt.Sprintf("%d new exam notifications match your profile", n),
			fmt.Sprintf("%d new notifications matching your profile were published.", n)
	default:
		return fmt.Sprintf("Your weekly exam digest: %d open exams", n),
			"Here are the exams you are eligible for, ordered by last date."
	}
}

func daysUntil(now, deadline time.Time) int {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	y, m, d = deadline.Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(today).Hours() / 24)
}

func closesIn(days int) string {
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}
