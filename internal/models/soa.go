package models

import (
	"time"

	"github.com/google/uuid"
)

// SOA statuses
const (
	SOAStatusDraft        = "draft"
	SOAStatusSent         = "sent"
	SOAStatusOpened       = "opened"
	SOAStatusClientSigned = "client_signed"
	SOAStatusCompleted    = "completed"
	SOAStatusExpired      = "expired"
	SOAStatusVoided       = "voided"
)

// Valid state transitions: from -> []to
var ValidSOATransitions = map[string][]string{
	SOAStatusDraft:        {SOAStatusSent, SOAStatusExpired, SOAStatusVoided},
	SOAStatusSent:         {SOAStatusOpened, SOAStatusClientSigned, SOAStatusExpired, SOAStatusVoided},
	SOAStatusOpened:       {SOAStatusClientSigned, SOAStatusExpired, SOAStatusVoided},
	SOAStatusClientSigned: {SOAStatusCompleted, SOAStatusVoided},
	SOAStatusCompleted:    {},
	SOAStatusExpired:      {},
	SOAStatusVoided:       {},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidSOATransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether no further transitions are possible.
func IsTerminalStatus(status string) bool {
	return len(ValidSOATransitions[status]) == 0
}

// IsUsedStatus reports whether the signing token has been consumed:
// the record is signed, finalized, or voided.
func IsUsedStatus(status string) bool {
	switch status {
	case SOAStatusClientSigned, SOAStatusCompleted, SOAStatusVoided:
		return true
	}
	return false
}

// Signer types
const (
	SignerTypeBeneficiary    = "beneficiary"
	SignerTypeRepresentative = "representative"
)

// Delivery methods. Only email is implemented; the rest are reserved.
const (
	DeliveryMethodEmail = "email"
	DeliveryMethodSMS   = "sms"
	DeliveryMethodMail  = "mail"
)

// Products, in the template's checkbox order top to bottom.
const (
	ProductPartD               = "part_d"
	ProductPartC               = "part_c"
	ProductDentalVisionHearing = "dental_vision_hearing"
	ProductHospitalIndemnity   = "hospital_indemnity"
	ProductMedigap             = "medigap"
)

var SOAProducts = []string{
	ProductPartD,
	ProductPartC,
	ProductDentalVisionHearing,
	ProductHospitalIndemnity,
	ProductMedigap,
}

func IsValidProduct(p string) bool {
	for _, known := range SOAProducts {
		if known == p {
			return true
		}
	}
	return false
}

// Supported document languages
const (
	LanguageEnglish = "en"
	LanguageSpanish = "es"
)

func IsValidLanguage(l string) bool {
	return l == LanguageEnglish || l == LanguageSpanish
}

type SOARecord struct {
	ID                   uuid.UUID  `json:"id"`
	AgentUserID          uuid.UUID  `json:"agent_user_id"`
	ClientID             uuid.UUID  `json:"client_id"`
	Status               string     `json:"status"`
	DeliveryMethod       string     `json:"delivery_method"`
	SecureToken          string     `json:"-"`
	TokenExpiresAt       time.Time  `json:"token_expires_at"`
	Language             string     `json:"language"`
	ProductsPreselected  []string   `json:"products_preselected"`
	ProductsSelected     []string   `json:"products_selected,omitempty"`
	SignerType           *string    `json:"signer_type,omitempty"`
	ClientTypedSignature *string    `json:"client_typed_signature,omitempty"`
	ClientSignedAt       *time.Time `json:"client_signed_at,omitempty"`
	ClientIPAddress      *string    `json:"client_ip_address,omitempty"`
	ClientUserAgent      *string    `json:"client_user_agent,omitempty"`
	RepName              *string    `json:"rep_name,omitempty"`
	RepRelationship      *string    `json:"rep_relationship,omitempty"`
	AgentName            string     `json:"agent_name"`
	AgentPhone           *string    `json:"agent_phone,omitempty"`
	AgentNPN             *string    `json:"agent_npn,omitempty"`
	BeneficiaryName      string     `json:"beneficiary_name"`
	BeneficiaryPhone     *string    `json:"beneficiary_phone,omitempty"`
	BeneficiaryAddress   *string    `json:"beneficiary_address,omitempty"`
	AgentTypedSignature  *string    `json:"agent_typed_signature,omitempty"`
	AgentSignedAt        *time.Time `json:"agent_signed_at,omitempty"`
	InitialContactMethod *string    `json:"initial_contact_method,omitempty"`
	AppointmentDate      *time.Time `json:"appointment_date,omitempty"`
	SignedArtifactPath   *string    `json:"signed_artifact_path,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TokenExpired reports whether the signing link horizon has elapsed.
func (r *SOARecord) TokenExpired(now time.Time) bool {
	return now.After(r.TokenExpiresAt)
}

// EffectiveStatus folds lazy expiry into the projected status: a record
// whose token elapsed before any signature reads as expired even if the
// stored row was never swept.
func (r *SOARecord) EffectiveStatus(now time.Time) string {
	if !IsUsedStatus(r.Status) && !IsTerminalStatus(r.Status) && r.TokenExpired(now) {
		return SOAStatusExpired
	}
	return r.Status
}
