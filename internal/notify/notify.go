// Package notify e-mails a run summary once a crawl finishes.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	gomail "gopkg.in/mail.v2"

	"github.com/sells-group/cashback-intel/internal/model"
)

// Config holds SMTP settings. Notification is disabled when Host or To is
// empty.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Enabled reports whether enough settings are present to send mail.
func (c Config) Enabled() bool {
	return c.Host != "" && len(c.To) > 0
}

// Mailer delivers composed messages. *gomail.Dialer satisfies it.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Report describes one finished site crawl.
type Report struct {
	Site    string
	Level   model.Level
	Backend string
	Stats   *model.RunStats
	Results []*model.ExtractionResult
	Files   []string
}

// Rendered is a subject plus text and HTML bodies.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

// Notifier renders reports and sends them.
type Notifier struct {
	cfg    Config
	mailer Mailer
	tmpl   *template.Template
}

// New creates a Notifier that dials cfg.Host.
func New(cfg Config) *Notifier {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.Timeout = 10 * time.Second
	return NewWithMailer(cfg, d)
}

// NewWithMailer creates a Notifier that sends through m.
func NewWithMailer(cfg Config, m Mailer) *Notifier {
	return &Notifier{
		cfg:    cfg,
		mailer: m,
		tmpl:   template.Must(template.New("summary").Parse(summaryHTML)),
	}
}

// Send e-mails the reports as one message. It is a no-op when the config is
// not enabled or there is nothing to report.
func (n *Notifier) Send(reports []Report) error {
	if !n.cfg.Enabled() || len(reports) == 0 {
		return nil
	}

	msg, err := n.Render(reports)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from())
	m.SetHeader("To", n.cfg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	if err := n.mailer.DialAndSend(m); err != nil {
		return eris.Wrap(err, "notify: send")
	}
	zap.L().Info("notify: summary sent",
		zap.Strings("to", n.cfg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

func (n *Notifier) from() string {
	if n.cfg.From != "" {
		return n.cfg.From
	}
	return n.cfg.Username
}

type siteView struct {
	Site       string
	Level      string
	Backend    string
	Results    int
	Processed  int
	Tokens     int64
	Cost       string
	StopReason string
	Failures   []failureView
	Top        []*model.ExtractionResult
}

type failureView struct {
	Category string
	Count    int
}

// Render builds the message without sending it.
func (n *Notifier) Render(reports []Report) (*Rendered, error) {
	views := make([]siteView, 0, len(reports))
	total := 0
	for _, r := range reports {
		v := newSiteView(r)
		total += v.Results
		views = append(views, v)
	}

	subject := fmt.Sprintf("Cashback intel: %d offers from %d site(s)", total, len(reports))

	var html bytes.Buffer
	if err := n.tmpl.Execute(&html, map[string]any{"Subject": subject, "Sites": views}); err != nil {
		return nil, eris.Wrap(err, "notify: render html")
	}
	return &Rendered{Subject: subject, Text: renderText(subject, views), HTML: html.String()}, nil
}

func newSiteView(r Report) siteView {
	v := siteView{
		Site:    r.Site,
		Level:   string(r.Level),
		Backend: r.Backend,
		Results: len(r.Results),
		Cost:    "$0.0000",
	}
	if r.Stats != nil {
		v.Processed = r.Stats.Processed
		v.Tokens = r.Stats.TokensUsed
		v.Cost = fmt.Sprintf("$%.4f", r.Stats.Cost)
		v.StopReason = string(r.Stats.StopReason)
		for cat, count := range r.Stats.Failures {
			if count > 0 {
				v.Failures = append(v.Failures, failureView{Category: string(cat), Count: count})
			}
		}
		sort.Slice(v.Failures, func(i, j int) bool {
			if v.Failures[i].Count != v.Failures[j].Count {
				return v.Failures[i].Count > v.Failures[j].Count
			}
			return v.Failures[i].Category < v.Failures[j].Category
		})
	}

	top := append([]*model.ExtractionResult(nil), r.Results...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Confidence > top[j].Confidence })
	if len(top) > 10 {
		top = top[:10]
	}
	v.Top = top
	return v
}

func renderText(subject string, views []siteView) string {
	var sb strings.Builder
	sb.WriteString(subject + "\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n")
	for _, v := range views {
		fmt.Fprintf(&sb, "\n%s (%s", v.Site, v.Level)
		if v.Backend != "" {
			fmt.Fprintf(&sb, ", %s", v.Backend)
		}
		sb.WriteString(")\n")
		fmt.Fprintf(&sb, "Offers: %d of %d processed\n", v.Results, v.Processed)
		fmt.Fprintf(&sb, "Tokens: %d  Cost: %s\n", v.Tokens, v.Cost)
		if v.StopReason != "" {
			fmt.Fprintf(&sb, "Stopped: %s\n", v.StopReason)
		}
		for _, f := range v.Failures {
			fmt.Fprintf(&sb, "\t- %s: %d\n", f.Category, f.Count)
		}
		for _, r := range v.Top {
			fmt.Fprintf(&sb, "\t* %s: %s (%.2f)\n", r.Merchant, r.Offer, r.Confidence)
		}
	}
	return sb.String()
}

const summaryHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <title>{{.Subject}}</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; color: #111827; }
    table { border-collapse: collapse; margin-bottom: 16px; }
    th, td { border: 1px solid #e5e7eb; padding: 4px 8px; text-align: left; }
    .muted { color: #6b7280; }
  </style>
</head>
<body>
  <h2>{{.Subject}}</h2>
  {{range .Sites}}
  <h3>{{.Site}} <span class="muted">{{.Level}}{{if .Backend}} / {{.Backend}}{{end}}</span></h3>
  <p>{{.Results}} offers from {{.Processed}} pages. {{.Tokens}} tokens, {{.Cost}}.{{if .StopReason}} Stopped: {{.StopReason}}.{{end}}</p>
  {{if .Failures}}
  <ul>{{range .Failures}}<li>{{.Category}}: {{.Count}}</li>{{end}}</ul>
  {{end}}
  {{if .Top}}
  <table>
    <tr><th>Merchant</th><th>Offer</th><th>Confidence</th><th>Method</th></tr>
    {{range .Top}}<tr><td><a href="{{.URL}}">{{.Merchant}}</a></td><td>{{.Offer}}</td><td>{{printf "%.2f" .Confidence}}</td><td>{{.Method}}</td></tr>
    {{end}}
  </table>
  {{end}}
  {{end}}
</body>
</html>
`
