package domain

import "context"

type IssuancePolicyInput struct {
	Project  IssuancePolicyProject `json:"project"`
	Issuance IssuancePolicyRequest `json:"issuance"`
}

type IssuancePolicyProject struct {
	ID               string  `json:"id"`
	Status           string  `json:"status"`
	EcosystemType    string  `json:"ecosystem_type"`
	AreaHectares     float64 `json:"area_hectares"`
	EstimatedCredits float64 `json:"estimated_credits"`
	IssuedCredits    uint64  `json:"issued_credits"`
	PendingCredits   uint64  `json:"pending_credits"`
}

type IssuancePolicyRequest struct {
	Amount           uint64 `json:"amount"`
	Recipient        string `json:"recipient"`
	RecipientIsValid bool   `json:"recipient_is_valid"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEvaluation struct {
	BundleID   string       `json:"bundle_id,omitempty"`
	BundleHash string       `json:"bundle_hash"`
	Result     PolicyResult `json:"result"`
}

type IssuancePolicy interface {
	Evaluate(ctx context.Context, input IssuancePolicyInput) (PolicyEvaluation, error)
}
