package emailsvc

import (
	"net/http"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wtlassist/backend/core"
)

const sendgridAttempts = 3

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"

	sendgridAPI = sendgrid.API // mockable
)

type sendgridService struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return &sendgridService{
		key:        conf.SendgridApiKey,
		from:       sgmail.NewEmail(conf.DefaultFromEmail.Name, conf.DefaultFromEmail.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(); err != nil {
				svc.logger.Error("rendering email", err, map[string]interface{}{"template": msg.TemplateName})
				return
			}
			if msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments()) {
				svc.send(*msg)
			}
		}()
	}
}

func (svc sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject

	for _, to := range msg.To {
		p.AddTos(getSGEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(getSGEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(getSGEmail(bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}

	for _, a := range msg.Attachments {
		m.AddAttachment(&sgmail.Attachment{
			Content:     a.Content.String(),
			Type:        a.ContentType,
			Filename:    a.Filename,
			Disposition: "attachment",
		})
	}
	return m
}

func getSGEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

// send posts the message, retrying server errors with a growing delay.
func (svc sendgridService) send(msg core.EmailMessage) {
	body := sgmail.GetRequestBody(svc.prepare(msg))

	var err error
	for attempt := 1; attempt <= sendgridAttempts; attempt++ {
		req := sendgrid.GetRequest(svc.key, endpoint, host)
		req.Method = http.MethodPost
		req.Body = body

		res, reqErr := sendgridAPI(req)
		switch {
		case reqErr != nil:
			err = errors.Wrap(reqErr, "sending email")
		case res.StatusCode >= http.StatusInternalServerError:
			err = errors.Errorf("sending email - status: %d - body: %s", res.StatusCode, res.Body)
		case res.StatusCode >= http.StatusBadRequest:
			// the request itself is wrong; retrying won't help
			svc.logger.Error("sending email", errors.Errorf("status: %d - body: %s", res.StatusCode, res.Body),
				map[string]interface{}{"template": msg.TemplateName})
			return
		default:
			return
		}
		if attempt < sendgridAttempts {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	svc.logger.Error("sending email", err, map[string]interface{}{"template": msg.TemplateName, "attempts": sendgridAttempts})
}
