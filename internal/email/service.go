// Package email sends the outreach digest to the front desk.
package email

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/physio-outreach/internal/model"
)

type Service interface {
	SendDigest(ctx context.Context, candidates []model.AnalysisResult, stats model.RunStats) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// SMTPService delivers digests through an SMTP relay. A digest is sent even
// when there are no candidates so that the front desk can tell an empty run
// from a missing one.
type SMTPService struct {
	from string
	to   []string
	send func(msgs ...*gomail.Message) error
	now  func() time.Time
}

var _ Service = (*SMTPService)(nil)

func NewSMTPService(cfg SMTPConfig) *SMTPService {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &SMTPService{
		from: cfg.From,
		to:   cfg.To,
		send: dialer.DialAndSend,
		now:  time.Now,
	}
}

var digestTemplate = template.Must(template.New("digest").Parse(
	`Outreach scan of {{.Date}}

{{if .Candidates}}Patients to contact ({{len .Candidates}}):
{{range .Candidates}}
- {{.FirstName}} {{.LastName}}, {{.Phone}}, missed {{.SkippedAppointmentAt.Format "02/01/2006 15:04"}}{{end}}
{{else}}No patients to contact.
{{end}}
Scanned {{.Stats.Scanned}} active patients.
`))

func (s *SMTPService) render(candidates []model.AnalysisResult, stats model.RunStats) (string, error) {
	var buf bytes.Buffer
	err := digestTemplate.Execute(&buf, struct {
		Date       string
		Candidates []model.AnalysisResult
		Stats      model.RunStats
	}{
		Date:       s.now().Format("02/01/2006"),
		Candidates: candidates,
		Stats:      stats,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render digest: %w", err)
	}
	return buf.String(), nil
}

func (s *SMTPService) SendDigest(ctx context.Context, candidates []model.AnalysisResult, stats model.RunStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := s.render(candidates, stats)
	if err != nil {
		return err
	}

	m := gomail.NewMessage(gomail.SetEncoding(gomail.Unencoded))
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to...)
	m.SetHeader("Subject", fmt.Sprintf("Outreach candidates: %d", len(candidates)))
	m.SetBody("text/plain", body)

	if err := s.send(m); err != nil {
		return fmt.Errorf("failed to send digest: %w", err)
	}
	return nil
}
