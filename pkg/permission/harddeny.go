package permission

import "regexp"

// denyRule pairs a pattern with the reason surfaced when it matches.
type denyRule struct {
	pattern *regexp.Regexp
	reason  string
}

// shellDenyRules are the unconditional content filters for shell commands.
// A match denies regardless of any setting; there is no override path.
var shellDenyRules = []denyRule{
	{
		pattern: regexp.MustCompile(`(?i)(\.ssh/|\bid_rsa\b|\bid_ed25519\b|\bid_ecdsa\b|\bid_dsa\b)`),
		reason:  "command reads an SSH private key",
	},
	{
		pattern: regexp.MustCompile(`(?i)(\.aws/credentials|\.netrc\b|\.git-credentials\b|gcloud/.*credentials)`),
		reason:  "command accesses a credential store",
	},
	{
		pattern: regexp.MustCompile(`(?i)\bsecurity\s+(find-generic-password|find-internet-password|dump-keychain|export)\b`),
		reason:  "command reads the system keychain",
	},
	{
		pattern: regexp.MustCompile(`(?i)(\bsecret-tool\s+lookup\b|\bgnome-keyring\b|\bkwallet\b)`),
		reason:  "command reads the desktop secret service",
	},
	{
		pattern: regexp.MustCompile(`(?i)(^|[;&|(]\s*)(env|printenv|set)\s*($|[;&|>)])`),
		reason:  "command dumps environment variables",
	},
	{
		pattern: regexp.MustCompile(`(?i)\b(op|lpass|bw|keepassxc-cli|pass)\s+(get|show|item|list|export)\b`),
		reason:  "command accesses a password manager",
	},
	{
		pattern: regexp.MustCompile(`(?i)(\.gnupg/|--export-secret-key)`),
		reason:  "command exports GPG private key material",
	},
}

// matchHardDeny checks a shell command against the deny filters. The second
// return is true when the command matched and must be denied.
func matchHardDeny(command string) (string, bool) {
	if command == "" {
		return "", false
	}
	for _, rule := range shellDenyRules {
		if rule.pattern.MatchString(command) {
			return rule.reason, true
		}
	}
	return "", false
}
