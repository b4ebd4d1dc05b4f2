// Package email renders digest notification emails and provides
// email-related helpers (recipient redaction for logs).
package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"puretrack/internal/types"
)

//go:embed templates/digest.html templates/digest.txt
var templateFS embed.FS

// categoryTitles maps digest category strings to human-readable subject
// fragments. Unknown categories fall back to a cleaned-up version of the
// raw string so new categories degrade gracefully.
var categoryTitles = map[string]string{
	"ph_high":          "High pH",
	"ph_low":           "Low pH",
	"turbidity_high":   "High Turbidity",
	"turbidity_low":    "Low Turbidity",
	"tds_high":         "High TDS",
	"tds_low":          "Low TDS",
	"temperature_high": "High Temperature",
	"temperature_low":  "Low Temperature",
	"multi_param":      "Water Quality",
}

// templateData is the struct passed into the digest templates.
type templateData struct {
	CategoryTitle string
	Day           string
	Items         []itemData
	AckURL        string
	ItemCount     int
}

// itemData is one alert line in the rendered email.
type itemData struct {
	Summary   string
	Severity  string
	Device    string
	Timestamp string
}

// Renderer renders digest emails client-side using Go templates embedded in
// the binary. Rendering is deterministic: the same digest snapshot always
// yields the same bytes, which is what makes the send-log audit trail
// meaningful.
type Renderer struct {
	htmlTmpl *template.Template
	textTmpl *texttemplate.Template

	sender  types.EmailAddress
	baseURL string // public API base for the acknowledgment link, no trailing slash
}

// RendererConfig holds the parameters needed to construct a Renderer.
type RendererConfig struct {
	SenderName    string
	SenderAddress string
	// APIExternalURL is the public base the acknowledgment link points at.
	APIExternalURL string
}

// NewRenderer parses the embedded templates and returns a Renderer.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	htmlTmpl, err := template.ParseFS(templateFS, "templates/digest.html")
	if err != nil {
		return nil, fmt.Errorf("parsing html digest template: %w", err)
	}
	textTmpl, err := texttemplate.ParseFS(templateFS, "templates/digest.txt")
	if err != nil {
		return nil, fmt.Errorf("parsing text digest template: %w", err)
	}

	return &Renderer{
		htmlTmpl: htmlTmpl,
		textTmpl: textTmpl,
		sender: types.EmailAddress{
			Name:    cfg.SenderName,
			Address: cfg.SenderAddress,
		},
		baseURL: strings.TrimRight(cfg.APIExternalURL, "/"),
	}, nil
}

// Render produces the complete outbound email for a digest snapshot,
// including the one-click acknowledgment link.
func (r *Renderer) Render(d *types.AlertDigest) (types.SendInput, error) {
	data := templateData{
		CategoryTitle: TitleForCategory(d.Category),
		Day:           d.Day,
		AckURL:        r.ackURL(d),
		ItemCount:     len(d.Items),
		Items:         make([]itemData, 0, len(d.Items)),
	}
	for _, item := range d.Items {
		data.Items = append(data.Items, itemData{
			Summary:   item.Summary,
			Severity:  string(item.Severity),
			Device:    item.DeviceName,
			Timestamp: item.Timestamp.UTC().Format(time.RFC1123),
		})
	}

	var htmlBuf bytes.Buffer
	if err := r.htmlTmpl.Execute(&htmlBuf, data); err != nil {
		return types.SendInput{}, fmt.Errorf("rendering html digest body: %w", err)
	}
	var textBuf bytes.Buffer
	if err := r.textTmpl.Execute(&textBuf, data); err != nil {
		return types.SendInput{}, fmt.Errorf("rendering text digest body: %w", err)
	}

	subject := fmt.Sprintf("[PureTrack] %s Alert Digest: %d alert(s) on %s",
		data.CategoryTitle, data.ItemCount, d.Day)

	return types.SendInput{
		To:       d.RecipientEmail,
		From:     r.sender,
		Subject:  subject,
		BodyHTML: htmlBuf.String(),
		BodyText: textBuf.String(),
		DigestID: d.ID,
	}, nil
}

// ackURL builds the public acknowledgment link for a digest. The token is
// passed as a query parameter so the link works as a plain GET from any
// mail client.
func (r *Renderer) ackURL(d *types.AlertDigest) string {
	return fmt.Sprintf("%s/v1/digests/%s/ack?token=%s",
		r.baseURL,
		url.PathEscape(d.ID),
		url.QueryEscape(d.AckToken),
	)
}

// TitleForCategory returns the display title for a category, cleaning up
// unknown category strings ("sensor_x_high" -> "sensor x high").
func TitleForCategory(category string) string {
	if title, ok := categoryTitles[category]; ok {
		return title
	}
	return strings.ReplaceAll(category, "_", " ")
}
