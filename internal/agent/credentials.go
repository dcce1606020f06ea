package agent

import "net/http"

// Request headers that carry per-request service credentials.
const (
	HeaderAPIKey       = "X-OpenAI-Key"
	HeaderOrganization = "X-OpenAI-Organization"
	HeaderProject      = "X-OpenAI-Project"
)

// Credentials identify the operator's account with the model services.
// They are held only for the duration of a call and never persisted.
type Credentials struct {
	APIKey       string
	Organization string
	Project      string
}

// CredentialsFromHeaders reads credentials supplied on an HTTP request.
func CredentialsFromHeaders(h http.Header) Credentials {
	return Credentials{
		APIKey:       h.Get(HeaderAPIKey),
		Organization: h.Get(HeaderOrganization),
		Project:      h.Get(HeaderProject),
	}
}

// Or returns c when it carries an API key, otherwise fallback.
// Organization and project are never mixed across the two.
func (c Credentials) Or(fallback Credentials) Credentials {
	if c.APIKey == "" {
		return fallback
	}
	return c
}

// projectTransport sets the OpenAI-Project header on every request.
type projectTransport struct {
	project string
	base    http.RoundTripper
}

func (t *projectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("OpenAI-Project", t.project)
	return t.base.RoundTrip(req)
}
