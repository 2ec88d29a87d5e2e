package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soasign/backend/internal/models"
)

// Message is one outbound notification. The transport behind Sender is
// injected; the dispatcher only composes content.
type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Human-readable product labels used in notices.
var productLabels = map[string]string{
	models.ProductPartD:               "Stand-alone Medicare Prescription Drug Plans (Part D)",
	models.ProductPartC:               "Medicare Advantage Plans (Part C) and Cost Plans",
	models.ProductDentalVisionHearing: "Dental/Vision/Hearing Products",
	models.ProductHospitalIndemnity:   "Hospital Indemnity Products",
	models.ProductMedigap:             "Medicare Supplement (Medigap) Products",
}

// Dispatcher composes and sends the two lifecycle notifications: the
// sign-request link to the client and the ready-for-countersignature
// notice to the agent.
type Dispatcher struct {
	sender         Sender
	signingBaseURL string
	agentBaseURL   string
	tokenTTL       time.Duration
	log            *zap.Logger
}

func NewDispatcher(sender Sender, signingBaseURL, agentBaseURL string, tokenTTL time.Duration, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sender:         sender,
		signingBaseURL: strings.TrimRight(signingBaseURL, "/"),
		agentBaseURL:   strings.TrimRight(agentBaseURL, "/"),
		tokenTTL:       tokenTTL,
		log:            log,
	}
}

// SigningURL embeds the token as a path segment of the public signing page.
func (d *Dispatcher) SigningURL(token string) string {
	return fmt.Sprintf("%s/sign/%s", d.signingBaseURL, token)
}

// SendSignRequest delivers the signing link to the client in the record's
// language. The expiry disclosure in the copy is informational; the server
// enforces the horizon independently.
func (d *Dispatcher) SendSignRequest(ctx context.Context, rec *models.SOARecord, to string) error {
	hours := int(d.tokenTTL.Hours())
	link := d.SigningURL(rec.SecureToken)

	var subject, body string
	switch rec.Language {
	case models.LanguageSpanish:
		subject = "Acuerdo de Alcance de la Cita: se requiere su firma"
		body = fmt.Sprintf(
			"Hola %s,\n\n"+
				"Su agente %s le ha enviado un formulario de Alcance de la Cita (Scope of Appointment) para firmar antes de su reunion.\n\n"+
				"Firme aqui: %s\n\n"+
				"Este enlace vence en %d horas.\n\n"+
				"Firmar este formulario no le obliga a inscribirse en ningun plan, no afecta su inscripcion actual y no le inscribe automaticamente en el plan discutido.",
			rec.BeneficiaryName, rec.AgentName, link, hours)
	default:
		subject = "Scope of Appointment: your signature is requested"
		body = fmt.Sprintf(
			"Hello %s,\n\n"+
				"Your agent %s has sent you a Scope of Appointment form to sign before your upcoming meeting.\n\n"+
				"Sign here: %s\n\n"+
				"This link expires in %d hours.\n\n"+
				"Signing this form does NOT obligate you to enroll in a plan, does not affect your current enrollment, and does not automatically enroll you in the plan discussed.",
			rec.BeneficiaryName, rec.AgentName, link, hours)
	}

	return d.sender.Send(ctx, Message{To: to, Subject: subject, Body: body})
}

// SendCountersignNotice tells the agent the client has signed and which
// products were selected, with a return link for countersignature.
func (d *Dispatcher) SendCountersignNotice(ctx context.Context, rec *models.SOARecord, to string) error {
	var products []string
	for _, p := range rec.ProductsSelected {
		label, ok := productLabels[p]
		if !ok {
			label = p
		}
		products = append(products, "  - "+label)
	}

	subject := fmt.Sprintf("SOA signed by %s: countersignature needed", rec.BeneficiaryName)
	body := fmt.Sprintf(
		"%s has signed their Scope of Appointment.\n\n"+
			"Products to be discussed:\n%s\n\n"+
			"Countersign to finalize: %s/soas/%s\n",
		rec.BeneficiaryName, strings.Join(products, "\n"), d.agentBaseURL, rec.ID)

	return d.sender.Send(ctx, Message{To: to, Subject: subject, Body: body})
}
