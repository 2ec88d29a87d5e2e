package dto

import (
	"time"

	"github.com/soasign/backend/internal/models"
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	Data   any               `json:"data,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// Verify error codes returned to the public signing page.
const (
	SignErrorNotFound    = "not_found"
	SignErrorExpired     = "expired"
	SignErrorAlreadyUsed = "already_used"
)

type VerifyResponse struct {
	Valid bool         `json:"valid"`
	Error string       `json:"error,omitempty"`
	SOA   *SigningView `json:"soa,omitempty"`
}

// SigningView is the subset of a record the unauthenticated signing page
// may see. No token, no client pii captured later, no internal ids beyond
// what the page needs.
type SigningView struct {
	BeneficiaryName     string    `json:"beneficiary_name"`
	AgentName           string    `json:"agent_name"`
	AgentPhone          *string   `json:"agent_phone,omitempty"`
	Language            string    `json:"language"`
	ProductsPreselected []string  `json:"products_preselected"`
	TokenExpiresAt      time.Time `json:"token_expires_at"`
}

func NewSigningView(rec *models.SOARecord) *SigningView {
	return &SigningView{
		BeneficiaryName:     rec.BeneficiaryName,
		AgentName:           rec.AgentName,
		AgentPhone:          rec.AgentPhone,
		Language:            rec.Language,
		ProductsPreselected: rec.ProductsPreselected,
		TokenExpiresAt:      rec.TokenExpiresAt,
	}
}

// CountersignResponse reports the finalized record plus any render
// problem. A failed render never undoes the countersignature; the record
// comes back completed with render_error set and can be re-rendered.
type CountersignResponse struct {
	OK          bool   `json:"ok"`
	Data        any    `json:"data,omitempty"`
	RenderError string `json:"render_error,omitempty"`
}

type DocumentURLResponse struct {
	URL string `json:"url"`
}
