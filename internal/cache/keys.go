package cache

const (
	modelResolutionPrefix = "registry:model:"
	rateLimitPrefix       = "ratelimit:"
)

// ModelResolutionKey holds the shared resolution of a logical model name.
func ModelResolutionKey(modelName string) string {
	return modelResolutionPrefix + modelName
}

// ModelResolutionPattern matches every shared resolution.
func ModelResolutionPattern() string {
	return modelResolutionPrefix + "*"
}

// RateLimitKey is keyed by a credential fingerprint, never the credential.
func RateLimitKey(fingerprint string) string {
	return rateLimitPrefix + fingerprint
}
