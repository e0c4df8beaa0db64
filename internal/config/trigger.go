package config

import "os"

// DefaultTriggerAPIURL is used when neither the config file nor the
// environment names an endpoint.
const DefaultTriggerAPIURL = "https://api.trigger.dev"

// Environment fallbacks for the trigger credentials.
const (
	triggerAPIKeyEnv = "TRIGGER_API_KEY"
	triggerAPIURLEnv = "TRIGGER_API_URL"
)

// Resolve applies the credential fallback chain: an explicitly configured
// value wins, then the environment, then the default endpoint. The API key
// has no default; callers that need one must check for it.
func (c TriggerConfig) Resolve() TriggerConfig {
	out := c
	if out.APIKey == "" {
		out.APIKey = os.Getenv(triggerAPIKeyEnv)
	}
	if out.APIURL == "" {
		out.APIURL = os.Getenv(triggerAPIURLEnv)
	}
	if out.APIURL == "" {
		out.APIURL = DefaultTriggerAPIURL
	}
	return out
}
