// Package protect flags solutions that touch sensitive parts of a project:
// auth, secrets, migrations and infrastructure.
package protect

// DefaultPatterns are glob patterns for protected directories.
var DefaultPatterns = []string{
	"**/auth/**",
	"**/security/**",
	"**/migrations/**",
	"**/infra/**",
	"**/secrets/**",
	"**/credentials/**",
	"**/certs/**",
	"**/.ssh/**",
	"**/terraform/**",
	"**/helm/**",
	"**/k8s/**",
	"**/kubernetes/**",
}

// DefaultKeywords are path substrings that mark a file as protected.
var DefaultKeywords = []string{
	"auth",
	"login",
	"password",
	"token",
	"secret",
	"migration",
	"credential",
	"private",
	"encrypt",
	"decrypt",
	"oauth",
	"jwt",
	"permission",
	"rbac",
	"apikey",
	"api_key",
	"keystore",
	"signing",
	"vault",
}

// DefaultFileTypes are protected file extensions.
var DefaultFileTypes = []string{
	".sql",
	".tf",
	".pem",
	".key",
	".env",
	".p12",
	".pfx",
	".jks",
	".crt",
}

// SecretPattern is a regular expression for a hard-coded credential in
// proposed file content.
type SecretPattern struct {
	Pattern string
	Reason  string
}

// DefaultSecretPatterns are checked against every line of proposed code,
// whatever the language.
var DefaultSecretPatterns = []SecretPattern{
	{`-----BEGIN [A-Z ]*PRIVATE KEY-----`, "private key"},
	{`\bAKIA[0-9A-Z]{16}\b`, "AWS access key"},
	{`(?i)aws_secret_access_key\s*[:=]`, "AWS secret key"},
	{`\bgh[pousr]_[A-Za-z0-9]{36}\b`, "GitHub token"},
	{`\bsk-(ant-)?[A-Za-z0-9_-]{20,}`, "API key"},
	{`(?i)\b(api_?key|client_secret|secret_key|password)\s*[:=]\s*["'][^"']{6,}["']`, "hard-coded credential"},
}
