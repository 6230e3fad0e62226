package notify

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/mail.v2"

	"github.com/sells-group/cashback-intel/internal/model"
)

type captureMailer struct {
	sent []*gomail.Message
	err  error
}

func (c *captureMailer) DialAndSend(m ...*gomail.Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, m...)
	return nil
}

func testConfig() Config {
	return Config{Host: "smtp.example.com", Port: 587, Username: "bot@example.com", To: []string{"team@example.com"}}
}

func testReport() Report {
	stats := model.NewRunStats()
	stats.Processed = 5
	stats.TokensUsed = 1200
	stats.Cost = 0.0042
	stats.StopReason = model.StopTargetReached
	stats.Fail(model.FailNotFound)
	stats.Fail(model.FailNotFound)
	stats.Fail(model.FailContent)

	low := model.NewResult("Kmart", "2%", 0.6, model.MethodAdaptiveSelector)
	high := model.NewResult("Myer", "8%", 0.95, model.MethodInference)
	high.URL = "https://www.shopback.com.au/store/myer"

	return Report{
		Site:    "shopback",
		Level:   model.LevelStandard,
		Backend: "openai",
		Stats:   stats,
		Results: []*model.ExtractionResult{low, high},
	}
}

func TestConfigEnabled(t *testing.T) {
	t.Parallel()

	assert.True(t, testConfig().Enabled())
	assert.False(t, Config{Host: "smtp.example.com"}.Enabled())
	assert.False(t, Config{To: []string{"a@b.c"}}.Enabled())
}

func TestRender(t *testing.T) {
	t.Parallel()

	msg, err := NewWithMailer(testConfig(), &captureMailer{}).Render([]Report{testReport()})
	require.NoError(t, err)

	assert.Equal(t, "Cashback intel: 2 offers from 1 site(s)", msg.Subject)
	assert.Contains(t, msg.Text, "shopback (standard, openai)")
	assert.Contains(t, msg.Text, "Offers: 2 of 5 processed")
	assert.Contains(t, msg.Text, "Cost: $0.0042")
	assert.Contains(t, msg.Text, "skipped_404: 2")
	assert.Contains(t, msg.HTML, `<a href="https://www.shopback.com.au/store/myer">Myer</a>`)

	// Highest confidence first.
	assert.Less(t, bytes.Index([]byte(msg.Text), []byte("Myer")), bytes.Index([]byte(msg.Text), []byte("Kmart")))
}

func TestSend(t *testing.T) {
	t.Parallel()

	mailer := &captureMailer{}
	require.NoError(t, NewWithMailer(testConfig(), mailer).Send([]Report{testReport()}))
	require.Len(t, mailer.sent, 1)

	m := mailer.sent[0]
	assert.Equal(t, []string{"bot@example.com"}, m.GetHeader("From"))
	assert.Equal(t, []string{"team@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Cashback intel: 2 offers from 1 site(s)"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "text/html")
}

func TestSend_Disabled(t *testing.T) {
	t.Parallel()

	mailer := &captureMailer{}
	require.NoError(t, NewWithMailer(Config{}, mailer).Send([]Report{testReport()}))
	require.NoError(t, NewWithMailer(testConfig(), mailer).Send(nil))
	assert.Empty(t, mailer.sent)
}

func TestSend_Error(t *testing.T) {
	t.Parallel()

	mailer := &captureMailer{err: errors.New("connection refused")}
	err := NewWithMailer(testConfig(), mailer).Send([]Report{testReport()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify: send")
}

func TestNew_UsesDialer(t *testing.T) {
	t.Parallel()

	n := New(testConfig())
	d, ok := n.mailer.(*gomail.Dialer)
	require.True(t, ok)
	assert.Equal(t, "smtp.example.com", d.Host)
	assert.Equal(t, 587, d.Port)
}
