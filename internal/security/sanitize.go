package security

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// targetNameRegex validates configured target names
	// Allows: letters, numbers, underscores, hyphens
	// Length: 1-64 characters
	targetNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,62}[a-zA-Z0-9])?$`)

	// runnerTypeRegex validates runner type names and filter kinds
	runnerTypeRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)

	// featureRegex validates capability tags
	featureRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`)

	// unixUserRegex validates Unix usernames
	// Standard POSIX username rules
	// Length: 1-32 characters
	unixUserRegex = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

	// serviceNameRegex validates init service names (ntp, chronyd, sshd@1)
	serviceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9@._-]{0,127}$`)

	// packageNameRegex validates distribution package names
	packageNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9+._-]{0,127}$`)

	// scriptNameRegex validates script file names relative to the script directory
	scriptNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+(/[a-zA-Z0-9_.-]+)*$`)

	// remotePathRegex validates absolute remote paths
	remotePathRegex = regexp.MustCompile(`^/([a-zA-Z0-9_.-]+(/[a-zA-Z0-9_.-]+)*)?/?$`)

	// sensitiveLogPatterns used by SanitizeCommandForLog to mask secrets
	sensitiveLogPatterns = []string{
		"PASSWORD=",
		"password=",
		"TOKEN=",
		"token=",
		"SECRET=",
		"secret=",
		"--password=",
	}
)

// ValidateTargetName validates a target name from the runbook
func ValidateTargetName(name string) error {
	if name == "" {
		return fmt.Errorf("target name cannot be empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("target name too long (max 64 characters)")
	}
	if !targetNameRegex.MatchString(name) {
		return fmt.Errorf("target name must contain only letters, numbers, underscores, and hyphens")
	}
	return nil
}

// ValidateRunnerType validates a runner type or filter kind name
func ValidateRunnerType(name string) error {
	if name == "" {
		return fmt.Errorf("runner type cannot be empty")
	}
	if !runnerTypeRegex.MatchString(name) {
		return fmt.Errorf("runner type %q must start with a lowercase letter followed by lowercase letters, numbers, underscores, or hyphens (max 32)", name)
	}
	return nil
}

// ValidateFeature validates a capability tag
func ValidateFeature(feature string) error {
	if feature == "" {
		return fmt.Errorf("feature cannot be empty")
	}
	if !featureRegex.MatchString(feature) {
		return fmt.Errorf("feature %q contains invalid characters", feature)
	}
	return nil
}

// ValidateUnixUser validates a Unix username
func ValidateUnixUser(user string) error {
	if user == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if len(user) > 32 {
		return fmt.Errorf("username too long (max 32 characters)")
	}
	if !unixUserRegex.MatchString(user) {
		return fmt.Errorf("username must start with a lowercase letter or underscore, followed by lowercase letters, numbers, underscores, or hyphens")
	}
	return nil
}

// ValidateServiceName validates a service name passed to the service tool
func ValidateServiceName(name string) error {
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if !serviceNameRegex.MatchString(name) {
		return fmt.Errorf("service name %q contains invalid characters", name)
	}
	return nil
}

// ValidatePackageName validates a package name passed to the package manager
func ValidatePackageName(name string) error {
	if name == "" {
		return fmt.Errorf("package name cannot be empty")
	}
	if !packageNameRegex.MatchString(name) {
		return fmt.Errorf("package name %q contains invalid characters", name)
	}
	return nil
}

// ValidateScriptName validates a script path relative to the script directory.
// Script names must be relative paths without parent traversal.
func ValidateScriptName(name string) error {
	if name == "" {
		return fmt.Errorf("script name cannot be empty")
	}
	if strings.HasPrefix(name, "/") {
		return fmt.Errorf("script name must be a relative path, got: %s", name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("script name cannot contain path traversal (..): %s", name)
	}
	if !scriptNameRegex.MatchString(name) {
		return fmt.Errorf("script name contains invalid characters: %s", name)
	}
	return nil
}

// ValidateRemotePath validates an absolute path on a target
func ValidateRemotePath(path string) error {
	if path == "" {
		return fmt.Errorf("remote path cannot be empty")
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("remote path must be absolute, got: %s", path)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("remote path cannot contain path traversal (..): %s", path)
	}
	if !remotePathRegex.MatchString(path) {
		return fmt.Errorf("remote path contains invalid characters: %s", path)
	}
	return nil
}

// ShellEscape escapes a string for safe use in shell commands by wrapping it
// in single quotes and escaping any internal single quotes using the POSIX
// pattern: ' → '\”
func ShellEscape(s string) string {
	escaped := strings.ReplaceAll(s, "'", "'\\''")
	return "'" + escaped + "'"
}

// SanitizeCommandForLog masks sensitive values in commands before logging.
// This prevents secrets from leaking into verbose output or runner log files.
func SanitizeCommandForLog(cmd string) string {
	result := cmd

	for _, pattern := range sensitiveLogPatterns {
		searchFrom := 0
		for {
			idx := strings.Index(result[searchFrom:], pattern)
			if idx == -1 {
				break
			}
			absIdx := searchFrom + idx
			valueStart := absIdx + len(pattern)
			valueEnd := findValueEnd(result, valueStart)
			masked := "****"
			result = result[:valueStart] + masked + result[valueEnd:]
			// Advance past the replacement to avoid infinite loop
			searchFrom = valueStart + len(masked)
		}
	}

	return result
}

// findValueEnd finds where a shell value ends (handles quoted and unquoted values)
func findValueEnd(s string, start int) int {
	if start >= len(s) {
		return start
	}

	if s[start] == '\'' {
		end := strings.Index(s[start+1:], "'")
		if end == -1 {
			return len(s)
		}
		return start + end + 2
	}

	if s[start] == '"' {
		end := strings.Index(s[start+1:], "\"")
		if end == -1 {
			return len(s)
		}
		return start + end + 2
	}

	for i := start; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' || s[i] == '\n' {
			return i
		}
	}
	return len(s)
}
