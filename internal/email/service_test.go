package email

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/physio-outreach/internal/model"
)

func newTestService(sent *[]*gomail.Message, err error) *SMTPService {
	s := NewSMTPService(SMTPConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "outreach@example.com",
		To:   []string{"front-desk@example.com"},
	})
	s.now = func() time.Time { return time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) }
	s.send = func(msgs ...*gomail.Message) error {
		*sent = append(*sent, msgs...)
		return err
	}
	return s
}

func TestSendDigest(t *testing.T) {
	var sent []*gomail.Message
	s := newTestService(&sent, nil)

	candidates := []model.AnalysisResult{{
		PatientID:            uuid.New(),
		FirstName:            "Anna",
		LastName:             "Bianchi",
		Phone:                "+39 02 123",
		SkippedAppointmentAt: time.Date(2026, 9, 9, 10, 30, 0, 0, time.UTC),
	}}
	require.NoError(t, s.SendDigest(context.Background(), candidates, model.RunStats{Scanned: 12, Emitted: 1}))
	require.Len(t, sent, 1)

	assert.Equal(t, []string{"Outreach candidates: 1"}, sent[0].GetHeader("Subject"))
	assert.Equal(t, []string{"front-desk@example.com"}, sent[0].GetHeader("To"))

	var buf bytes.Buffer
	_, err := sent[0].WriteTo(&buf)
	require.NoError(t, err)
	body := buf.String()
	assert.Contains(t, body, "Outreach scan of 19/10/2026")
	assert.Contains(t, body, "Anna Bianchi, +39 02 123, missed 09/09/2026 10:30")
	assert.Contains(t, body, "Scanned 12 active patients.")
}

func TestSendDigestEmpty(t *testing.T) {
	var sent []*gomail.Message
	s := newTestService(&sent, nil)

	require.NoError(t, s.SendDigest(context.Background(), nil, model.RunStats{Scanned: 4}))
	require.Len(t, sent, 1)

	var buf bytes.Buffer
	_, err := sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No patients to contact.")
}

func TestSendDigestError(t *testing.T) {
	var sent []*gomail.Message
	relayErr := errors.New("relay refused")
	s := newTestService(&sent, relayErr)

	err := s.SendDigest(context.Background(), nil, model.RunStats{})
	assert.ErrorIs(t, err, relayErr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.SendDigest(ctx, nil, model.RunStats{}), context.Canceled)
}
