package temporal

import (
	"strings"

	"github.com/rendis/temporal-mcp/pkg/schema"
)

// cloudHostSuffix turns a Temporal Cloud account id into its web host.
const cloudHostSuffix = ".web.tmprl.cloud"

// ResolveEndpoint returns the base URL of the Temporal HTTP API.
//
// A non-empty override is used verbatim. Otherwise endpoint is required: a
// value containing "localhost" is served over plain http, and anything else
// is treated as a Temporal Cloud account id.
func ResolveEndpoint(endpoint, override string) (string, error) {
	if override != "" {
		return strings.TrimRight(override, "/"), nil
	}
	if endpoint == "" {
		return "", schema.NewError(schema.ErrCodeConfig,
			"temporal endpoint is required: set TEMPORAL_ENDPOINT")
	}
	if strings.Contains(endpoint, "localhost") {
		return "http://" + endpoint, nil
	}
	return "https://" + endpoint + cloudHostSuffix, nil
}
