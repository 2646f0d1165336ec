package emailsvc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mahudhurio/core"
	logsvc "github.com/trezcool/mahudhurio/services/logger"
)

type sgPayload struct {
	From struct {
		Email string `json:"email"`
	} `json:"from"`
	Personalizations []struct {
		Subject string `json:"subject"`
		To      []struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"to"`
	} `json:"personalizations"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
	Categories   []string `json:"categories"`
	MailSettings *struct {
		SandboxMode *struct {
			Enable bool `json:"enable"`
		} `json:"sandbox_mode"`
	} `json:"mail_settings"`
}

func newTestSendgrid(t *testing.T, status int) (*sendgridService, *[]sgPayload) {
	var got []sgPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sendgridEndpoint, r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))

		var p sgPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		got = append(got, p)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	conf := core.NewTestConfig()
	conf.SendgridApiKey = "sg-key"
	svc := NewSendgridService(conf, logsvc.NewNopLogger()).(*sendgridService)
	svc.host = srv.URL
	return svc, &got
}

func TestSendgridService_sendMessage(t *testing.T) {
	msg := func() *core.EmailMessage {
		return &core.EmailMessage{
			To:       []mail.Address{{Name: "Alice", Address: "alice@school.test"}},
			Subject:  "Absence notice",
			BodyStr:  "Alice was absent.",
			Category: "absence_notice",
		}
	}

	t.Run("accepted", func(t *testing.T) {
		svc, got := newTestSendgrid(t, http.StatusAccepted)
		require.NoError(t, svc.sendMessage(msg()))
		require.Len(t, *got, 1)

		p := (*got)[0]
		assert.Equal(t, "noreply@localhost", p.From.Email)
		require.Len(t, p.Personalizations, 1)
		assert.Equal(t, "[Mahudhurio] Absence notice", p.Personalizations[0].Subject)
		require.Len(t, p.Personalizations[0].To, 1)
		assert.Equal(t, "alice@school.test", p.Personalizations[0].To[0].Email)
		require.Len(t, p.Content, 1)
		assert.Equal(t, "text/plain", p.Content[0].Type)
		assert.Equal(t, "Alice was absent.", p.Content[0].Value)
		assert.Equal(t, []string{"absence_notice"}, p.Categories)
		require.NotNil(t, p.MailSettings)
		require.NotNil(t, p.MailSettings.SandboxMode)
		assert.True(t, p.MailSettings.SandboxMode.Enable)
	})

	t.Run("rejected", func(t *testing.T) {
		svc, _ := newTestSendgrid(t, http.StatusBadRequest)
		if err := svc.sendMessage(msg()); err == nil {
			t.Errorf("sendMessage() error = %v, wantErr %v", err, true)
		}
	})

	t.Run("nothing to send", func(t *testing.T) {
		svc, got := newTestSendgrid(t, http.StatusAccepted)
		require.NoError(t, svc.sendMessage(&core.EmailMessage{Subject: "no recipients", BodyStr: "lol"}))
		require.NoError(t, svc.sendMessage(&core.EmailMessage{To: msg().To, Subject: "no content"}))
		assert.Empty(t, *got)
	})
}
