package dto

type CreateSOARequest struct {
	ClientID             string   `json:"client_id"`
	BeneficiaryName      string   `json:"beneficiary_name"`
	BeneficiaryPhone     *string  `json:"beneficiary_phone"`
	BeneficiaryAddress   *string  `json:"beneficiary_address"`
	AgentName            string   `json:"agent_name"`
	AgentPhone           *string  `json:"agent_phone"`
	AgentNPN             *string  `json:"agent_npn"`
	Language             string   `json:"language"`
	ProductsPreselected  []string `json:"products_preselected"`
	InitialContactMethod *string  `json:"initial_contact_method"`
	AppointmentDate      *string  `json:"appointment_date"` // YYYY-MM-DD
	DeliveryMethod       string   `json:"delivery_method"`
	DeliveryAddress      *string  `json:"delivery_address"`
}

type VoidSOARequest struct {
	Reason *string `json:"reason"`
}

type CountersignRequest struct {
	TypedSignature string `json:"typed_signature"`
}

type SubmitSignatureRequest struct {
	TypedSignature   string   `json:"typed_signature"`
	ProductsSelected []string `json:"products_selected"`
	SignerType       string   `json:"signer_type"`
	RepName          *string  `json:"rep_name"`
	RepRelationship  *string  `json:"rep_relationship"`
}
