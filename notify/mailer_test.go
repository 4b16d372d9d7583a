package notify_test

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commerce-engine/logging"
	"github.com/warp/commerce-engine/notify"
)

func TestLogMailer_WritesMessageToLog(t *testing.T) {
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	t.Cleanup(func() { logging.SetOutput(os.Stdout) })

	err := notify.LogMailer{}.Send(context.Background(), notify.Message{
		To:      []string{"owner@shop.test"},
		Subject: "First purchase: Lantern",
		Body:    "hello",
	})

	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"subject":"First purchase: Lantern"`)
	assert.Contains(t, buf.String(), `"to":["owner@shop.test"]`)
}

func TestSMTPMailer_RequiresRecipients(t *testing.T) {
	m := notify.NewSMTPMailer("localhost:2525", "shop@shop.test", "", "")

	err := m.Send(context.Background(), notify.Message{Subject: "nobody"})

	assert.ErrorContains(t, err, "no recipients")
	assert.Nil(t, m.Auth)
}

func TestNewSMTPMailer_AuthWhenUsernameSet(t *testing.T) {
	m := notify.NewSMTPMailer("smtp.shop.test:587", "shop@shop.test", "user", "secret")

	assert.NotNil(t, m.Auth)
	assert.Equal(t, "smtp.shop.test:587", m.Addr)
}

func TestNewMailer_FallsBackToLog(t *testing.T) {
	assert.IsType(t, notify.LogMailer{}, notify.NewMailer("", "from@shop.test", "", ""))
	assert.IsType(t, &notify.SMTPMailer{}, notify.NewMailer("smtp.shop.test:25", "from@shop.test", "", ""))
}
