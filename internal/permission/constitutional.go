package permission

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"finch/internal/net/ssrf"
)

// dangerousBashPatterns are substrings that unconditionally deny a bash
// invocation regardless of user configuration (spec §4.7), ported from
// original_source/src/tools/permissions.rs's check_bash_safety.
var dangerousBashPatterns = []struct {
	pattern string
	reason  string
}{
	{"rm -rf", "recursive deletion is blocked"},
	{"dd if=", "disk-level operations are blocked"},
	{":(){ :|:& };:", "fork bombs are blocked"},
	{"sudo", "privilege escalation requires manual execution"},
	{"chmod 777", "unsafe permission changes are blocked"},
	{"> /dev/", "direct device writes are blocked"},
	{"mkfs", "filesystem creation is blocked"},
	{"fdisk", "disk partitioning is blocked"},
}

// dangerousReadPrefixes are file path prefixes that unconditionally deny
// a read invocation.
var dangerousReadPrefixes = []string{
	"/etc/passwd", "/etc/shadow", "/etc/sudoers", "/dev/", "/proc/", "/sys/",
}

// dangerousURLSchemes are URL schemes that unconditionally deny a
// web_fetch invocation.
var dangerousURLSchemes = []string{"file://", "javascript:", "data:", "vbscript:"}

// CheckConstitutional applies the unconditional safety denylist (spec
// §4.7): dangerous bash patterns, system file reads, dangerous URL
// schemes, and SSRF against private IP ranges. Returns a non-empty,
// user-visible reason if the invocation is denied, or "" if it passes.
func CheckConstitutional(toolName string, input json.RawMessage) string {
	switch toolName {
	case "bash", "exec":
		return checkBash(input)
	case "read":
		return checkRead(input)
	case "web_fetch":
		return checkWebFetch(input)
	default:
		return ""
	}
}

func inputField(input json.RawMessage, key string) string {
	var m map[string]any
	if err := json.Unmarshal(input, &m); err != nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

func checkBash(input json.RawMessage) string {
	command := inputField(input, "command")
	if command == "" {
		return ""
	}
	for _, p := range dangerousBashPatterns {
		if strings.Contains(command, p.pattern) {
			return fmt.Sprintf("blocked: %s", p.reason)
		}
	}
	return ""
}

func checkRead(input json.RawMessage) string {
	path := inputField(input, "file_path")
	if path == "" {
		path = inputField(input, "path")
	}
	if path == "" {
		return ""
	}
	for _, prefix := range dangerousReadPrefixes {
		if strings.HasPrefix(path, prefix) {
			return fmt.Sprintf("blocked: access to system paths under %s is not allowed", prefix)
		}
	}
	return ""
}

func checkWebFetch(input json.RawMessage) string {
	raw := inputField(input, "url")
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	for _, scheme := range dangerousURLSchemes {
		if strings.HasPrefix(lower, scheme) {
			return fmt.Sprintf("blocked: URL scheme %q is not allowed", scheme)
		}
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "blocked: unparseable URL"
	}
	host := u.Hostname()
	if ssrf.IsPrivateIPAddress(host) || ssrf.IsBlockedHostname(host) {
		return "blocked: access to private or internal addresses is not allowed"
	}
	if err := ssrf.ValidatePublicHostname(host); err != nil {
		return fmt.Sprintf("blocked: %v", err)
	}
	return ""
}
