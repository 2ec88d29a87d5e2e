package pdf

import (
	"time"

	"github.com/soasign/backend/internal/models"
)

// The template is a fixed single-page letter form (612x792pt). Every
// overlay below is an absolute anchor in the template's own point system.

type anchor struct {
	x, y float64
}

// checkboxMark is drawn at a selected product's checkbox. Plain ASCII on
// purpose: the compliance-approved signature font's encoding does not
// cover non-ASCII glyphs.
const checkboxMark = "X"

// Product checkbox anchors, matching the template's checkbox column top
// to bottom in models.SOAProducts order.
var productAnchors = map[string]anchor{
	models.ProductPartD:               {x: 56, y: 176},
	models.ProductPartC:               {x: 56, y: 208},
	models.ProductDentalVisionHearing: {x: 56, y: 240},
	models.ProductHospitalIndemnity:   {x: 56, y: 272},
	models.ProductMedigap:             {x: 56, y: 304},
}

// Field anchors.
var (
	anchorClientSignature = anchor{x: 96, y: 388}
	anchorClientSignDate  = anchor{x: 436, y: 388}

	anchorRepName         = anchor{x: 96, y: 430}
	anchorRepRelationship = anchor{x: 346, y: 430}

	anchorBeneficiaryName    = anchor{x: 96, y: 500}
	anchorBeneficiaryPhone   = anchor{x: 382, y: 500}
	anchorBeneficiaryAddress = anchor{x: 96, y: 528}
	anchorInitialContact     = anchor{x: 96, y: 556}

	anchorAgentName  = anchor{x: 96, y: 612}
	anchorAgentPhone = anchor{x: 330, y: 612}
	anchorAgentNPN   = anchor{x: 486, y: 612}

	anchorAgentSignature = anchor{x: 96, y: 668}
	anchorAgentSignDate  = anchor{x: 436, y: 668}
)

// Font sizes.
const (
	bodySize      = 10.0
	markSize      = 12.0
	signatureSize = 18.0
)

const dateLayout = "01/02/2006"

// formatBareDate renders a stored calendar date without any timezone
// shift: the appointment date is a date, not an instant, so it is read in
// UTC no matter where the server runs.
func formatBareDate(t time.Time) string {
	return t.In(time.UTC).Format(dateLayout)
}

// formatTimestamp renders a signing instant as its calendar date.
func formatTimestamp(t time.Time) string {
	return t.Format(dateLayout)
}

// agentSignDate picks the appointment date when one was captured, falling
// back to the agent's countersignature timestamp.
func agentSignDate(rec *models.SOARecord) string {
	if rec.AppointmentDate != nil {
		return formatBareDate(*rec.AppointmentDate)
	}
	if rec.AgentSignedAt != nil {
		return formatTimestamp(*rec.AgentSignedAt)
	}
	return ""
}

// agentSignatureText picks what the agent signature line shows: the
// typed countersignature once one is captured, otherwise the agent's
// name. The form is rendered after the client signs and again after
// countersigning, and the agent line must never be blank.
func agentSignatureText(rec *models.SOARecord) string {
	if rec.AgentTypedSignature != nil && *rec.AgentTypedSignature != "" {
		return *rec.AgentTypedSignature
	}
	return rec.AgentName
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
