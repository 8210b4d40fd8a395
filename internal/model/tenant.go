package model

// Tenant is an independent data partition, typically one business location
// in the CRM platform. Each tenant owns one snapshot per dashboard kind and
// one API credential, provisioned outside this service.
type Tenant struct {
	ID       string `json:"id" mapstructure:"id"`
	Name     string `json:"name" mapstructure:"name"`
	APIToken string `json:"-" mapstructure:"api_token"`
}

// RefreshOutcome is the ephemeral result of one tenant's refresh attempt.
// It is never persisted; it feeds the response provenance and debug fields.
type RefreshOutcome struct {
	TenantID        string `json:"tenantId"`
	UsedIncremental bool   `json:"usedIncremental"`
	PagesFetched    int    `json:"pagesFetched"`
	Reason          string `json:"reason,omitempty"`
	Err             string `json:"error,omitempty"`
}
