package service

import (
	"fmt"
	"net/smtp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"streamchat/model"
	"streamchat/store"
)

// DigestService mails operators a daily report of generation activity:
// volume, throughput, errors still sitting in the ledger, and how many
// abandoned generations the reconciler recovered. It is the out-of-band
// observability channel for failures the user stream never shows.
type DigestService struct {
	Messages *store.MessageStore
	Ledger   *store.GenerationStore
	Logger   *logrus.Logger

	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	From     string
	To       string

	// Written by the per-minute reconciler job and read by the daily send;
	// cron runs each firing in its own goroutine.
	recovered atomic.Int64
}

// NoteRecovered is called by the reconciler job so recoveries since the last
// digest show up in the next one.
func (d *DigestService) NoteRecovered(n int) {
	d.recovered.Add(int64(n))
}

// Send builds and mails the digest for the past 24 hours.
func (d *DigestService) Send() error {
	if d.SMTPHost == "" || d.To == "" {
		d.Logger.Infof("[digest] SMTP not configured, skipping")
		return nil
	}

	recovered := d.recovered.Load()
	report, err := d.buildReport(time.Now().Add(-24*time.Hour), recovered)
	if err != nil {
		return err
	}

	e := email.NewEmail()
	e.From = d.From
	e.To = strings.Split(d.To, ",")
	e.Subject = fmt.Sprintf("streamchat generation digest %s", time.Now().Format("2006-01-02"))
	e.Text = []byte(report)
	e.HTML = markdown.ToHTML([]byte(report), nil, nil)

	addr := fmt.Sprintf("%s:%s", d.SMTPHost, d.SMTPPort)
	if err := e.Send(addr, smtp.PlainAuth("", d.SMTPUser, d.SMTPPass, d.SMTPHost)); err != nil {
		return fmt.Errorf("failed to send digest email: %w", err)
	}
	// Subtract what was reported rather than resetting, so recoveries noted
	// while the mail was in flight carry into the next digest.
	d.recovered.Add(-recovered)
	d.Logger.Infof("[digest] sent generation digest to %s", d.To)
	return nil
}

func (d *DigestService) buildReport(since time.Time, recovered int64) (string, error) {
	stats, err := d.Messages.StatsSince(since)
	if err != nil {
		return "", err
	}
	counts, err := d.Ledger.CountByStatus()
	if err != nil {
		return "", err
	}

	avg := "n/a"
	if stats.AverageTPS != nil {
		avg = fmt.Sprintf("%.1f tok/s", *stats.AverageTPS)
	}

	var b strings.Builder
	b.WriteString("# Generation digest\n\n")
	fmt.Fprintf(&b, "- Assistant messages (24h): **%d**\n", stats.AssistantMessages)
	fmt.Fprintf(&b, "- Average throughput: **%s**\n", avg)
	fmt.Fprintf(&b, "- Recovered by reconciler since last digest: **%d**\n", recovered)
	fmt.Fprintf(&b, "- Ledger rows still streaming: **%d**\n", counts[model.GenerationStreaming])
	fmt.Fprintf(&b, "- Ledger rows in error: **%d**\n", counts[model.GenerationError])
	return b.String(), nil
}
