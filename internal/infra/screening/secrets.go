// Package screening looks for credentials accidentally left in uploaded
// evidence (config exports, logs, screenshots of terminals saved as text).
package screening

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Severity enum
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityLow      Severity = "low"
)

// Finding is one detector hit. Sample is redacted.
type Finding struct {
	Title          string   `json:"title"`
	Severity       Severity `json:"severity"`
	Sample         string   `json:"sample"`
	Recommendation string   `json:"recommendation"`
}

// Report is the outcome of screening one file.
type Report struct {
	Scanned  bool      `json:"scanned"`
	Findings []Finding `json:"findings"`
}

// Blocking reports whether the file carries a critical finding.
func (r Report) Blocking() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

type detector struct {
	re             *regexp.Regexp
	title          string
	severity       Severity
	recommendation string
}

var detectors = []detector{
	{regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`), "Private key material", SeverityCritical, "Remove the key from the evidence and rotate it."},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "AWS access key", SeverityCritical, "Revoke the access key and redact it before uploading."},
	{regexp.MustCompile(`(?i)aws_secret_access_key\s*[:=]\s*["']?[A-Za-z0-9/+=]{20,}`), "AWS secret access key", SeverityCritical, "Rotate the secret and redact it before uploading."},
	{regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{20,}`), "GitHub token", SeverityCritical, "Revoke the token and redact it before uploading."},
	{regexp.MustCompile(`github_pat_[A-Za-z0-9_]{20,}`), "GitHub PAT", SeverityCritical, "Revoke the PAT and redact it before uploading."},
	{regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`), "Google API key", SeverityCritical, "Restrict and rotate the key."},
	{regexp.MustCompile(`xox[baprs]-[A-Za-z0-9\-]{10,}`), "Slack token", SeverityCritical, "Revoke the token in Slack admin."},
	{regexp.MustCompile(`sk_(?:live|test)_[0-9A-Za-z]{10,}`), "Stripe secret key", SeverityCritical, "Rotate the key in the Stripe dashboard."},
	{regexp.MustCompile(`(?i)DefaultEndpointsProtocol=https?;AccountName=[^;]+;AccountKey=[A-Za-z0-9+/=]{20,}`), "Azure storage connection string", SeverityCritical, "Rotate the storage account key."},
	{regexp.MustCompile(`[A-Za-z0-9-_]{8,}\.eyJ[A-Za-z0-9-_]{5,}\.[A-Za-z0-9-_]{10,}`), "JWT token", SeverityHigh, "Invalidate the session and redact the token."},
	{regexp.MustCompile(`://[^\s/:@]+:[^\s/@]+@`), "Credentials embedded in URL", SeverityHigh, "Strip credentials from URLs before uploading."},
	{regexp.MustCompile(`(?i)(api[_-]?key|client[_-]?secret|secret|token)\s*[:=]\s*["']?[^\s"']{12,}`), "Credential literal", SeverityLow, "Check whether the value is a live secret."},
}

const sniffLen = 8 << 10

// Scan inspects content when it looks like text. Binary content is
// reported as not scanned.
func Scan(contentType string, content []byte) Report {
	if !isText(contentType, content) {
		return Report{}
	}
	rep := Report{Scanned: true}
	text := string(content)
	for _, d := range detectors {
		match := d.re.FindString(text)
		if match == "" {
			continue
		}
		rep.Findings = append(rep.Findings, Finding{
			Title:          d.title,
			Severity:       d.severity,
			Sample:         redact(match),
			Recommendation: d.recommendation,
		})
	}
	return rep
}

func isText(contentType string, content []byte) bool {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "text/"),
		strings.Contains(ct, "json"),
		strings.Contains(ct, "yaml"),
		strings.Contains(ct, "xml"),
		strings.Contains(ct, "csv"):
		return true
	case ct != "" && ct != "application/octet-stream":
		return false
	}
	head := content
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	return len(head) > 0 && bytes.IndexByte(head, 0) < 0 && utf8.Valid(trimPartialRune(head))
}

func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if r, _ := utf8.DecodeLastRune(b); r != utf8.RuneError {
			break
		}
		b = b[:len(b)-1]
	}
	return b
}

// redact keeps enough of a match to find it again without storing the secret.
func redact(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", min(len(s)-8, 16)) + s[len(s)-4:]
}
