package email

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"puretrack/internal/types"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(RendererConfig{
		SenderName:     "PureTrack Alerts",
		SenderAddress:  "alerts@puretrack.io",
		APIExternalURL: "https://api.puretrack.io/",
	})
	require.NoError(t, err)
	return r
}

func testDigest() *types.AlertDigest {
	v := 11.2
	return &types.AlertDigest{
		ID:             "user-1_ph_high_2026-03-14",
		RecipientUID:   "user-1",
		RecipientEmail: "ops@plant.example",
		Category:       "ph_high",
		Day:            "2026-03-14",
		Items: []types.DigestAlertItem{
			{
				EventID:    "evt-1",
				Summary:    "Critical: ph 11.20 out of range on Tank 3 Sensor",
				Timestamp:  time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
				Value:      &v,
				Severity:   types.SeverityCritical,
				DeviceName: "Tank 3 Sensor",
				Parameter:  "ph",
			},
			{
				EventID:    "evt-2",
				Summary:    "Warning: ph 9.40 out of range on Tank 3 Sensor",
				Timestamp:  time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC),
				Severity:   types.SeverityWarning,
				DeviceName: "Tank 3 Sensor",
				Parameter:  "ph",
			},
		},
		AckToken: "deadbeef01",
	}
}

func TestRenderer_Render(t *testing.T) {
	r := newTestRenderer(t)
	d := testDigest()

	input, err := r.Render(d)
	require.NoError(t, err)

	assert.Equal(t, "ops@plant.example", input.To)
	assert.Equal(t, "PureTrack Alerts", input.From.Name)
	assert.Equal(t, "alerts@puretrack.io", input.From.Address)
	assert.Equal(t, d.ID, input.DigestID)
	assert.Equal(t, "[PureTrack] High pH Alert Digest: 2 alert(s) on 2026-03-14", input.Subject)

	// Both bodies carry every item summary and the acknowledgment link.
	wantURL := "https://api.puretrack.io/v1/digests/user-1_ph_high_2026-03-14/ack?token=deadbeef01"
	for _, body := range []string{input.BodyHTML, input.BodyText} {
		assert.Contains(t, body, "Tank 3 Sensor")
		assert.Contains(t, body, "Critical")
		assert.Contains(t, body, "Warning")
		assert.Contains(t, body, wantURL)
	}
}

func TestRenderer_Render_Deterministic(t *testing.T) {
	r := newTestRenderer(t)
	d := testDigest()

	first, err := r.Render(d)
	require.NoError(t, err)
	second, err := r.Render(d)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderer_Render_EscapesAckToken(t *testing.T) {
	r := newTestRenderer(t)
	d := testDigest()
	d.AckToken = "a b&c"

	input, err := r.Render(d)
	require.NoError(t, err)
	assert.Contains(t, input.BodyText, "token=a+b%26c")
}

func TestRenderer_Render_EscapesItemContent(t *testing.T) {
	r := newTestRenderer(t)
	d := testDigest()
	d.Items[0].Summary = `<script>alert("x")</script>`

	input, err := r.Render(d)
	require.NoError(t, err)
	assert.NotContains(t, input.BodyHTML, "<script>")
	assert.Contains(t, input.BodyHTML, "&lt;script&gt;")
}

func TestTitleForCategory(t *testing.T) {
	assert.Equal(t, "High pH", TitleForCategory("ph_high"))
	assert.Equal(t, "Water Quality", TitleForCategory("multi_param"))
	assert.Equal(t, "sensor x high", TitleForCategory("sensor_x_high"))
}
