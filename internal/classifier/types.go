package classifier

import (
	"fmt"
	"time"
)

// Source identifies the system that reported a failure.
type Source string

const (
	// SourceJenkins is a Jenkins build failure.
	SourceJenkins Source = "jenkins"
	// SourceAnsible is an Ansible task failure.
	SourceAnsible Source = "ansible"
	// SourceWebhook is a failure delivered over the generic webhook.
	SourceWebhook Source = "webhook"
	// SourceGeneric is a failure from an unidentified reporter.
	SourceGeneric Source = "generic"
)

// Category is the derived class of a failure.
type Category string

const (
	CategoryPackageManagement Category = "package_management"
	CategoryServiceManagement Category = "service_management"
	CategoryPermissions       Category = "permissions"
	CategoryNetwork           Category = "network"
	CategoryFilesystem        Category = "filesystem"
	CategoryConfiguration     Category = "configuration"
	CategoryUnknown           Category = "unknown"
)

// Severity is the derived severity of a failure.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ErrorRecord is the structured, categorized representation of one observed
// pipeline failure. Records are immutable once produced; category, severity
// and suggested actions are derived deterministically from the raw text.
type ErrorRecord struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Source           Source    `json:"source"`
	RawError         string    `json:"raw_error"`
	Stdout           string    `json:"stdout,omitempty"`
	Stderr           string    `json:"stderr,omitempty"`
	Host             string    `json:"host"`
	TaskName         string    `json:"task_name,omitempty"`
	Module           string    `json:"module,omitempty"`
	Category         Category  `json:"category"`
	Severity         Severity  `json:"severity"`
	SuggestedActions []string  `json:"suggested_actions"`
}

// SummaryLine renders the record as a single audit line.
func (r *ErrorRecord) SummaryLine() string {
	return fmt.Sprintf("%s - %s - %s - %s",
		r.Timestamp.UTC().Format(time.RFC3339), r.Source, r.Category, r.Severity)
}

// JenkinsBuild carries the failure-relevant fields of a Jenkins build report.
type JenkinsBuild struct {
	JobName       string `json:"job_name"`
	BuildNumber   int    `json:"build_number"`
	Stage         string `json:"stage,omitempty"`
	ErrorMessage  string `json:"error_message"`
	ConsoleOutput string `json:"console_output,omitempty"`
	Node          string `json:"node,omitempty"`
}

// AnsibleTaskResult carries the failure-relevant fields of one failed
// Ansible task on one host.
type AnsibleTaskResult struct {
	Host     string `json:"host"`
	TaskName string `json:"task_name"`
	Module   string `json:"module,omitempty"`
	Msg      string `json:"msg"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// severityByCategory is the fixed category to severity mapping. Categories
// that tend to take hosts out of rotation rank high; package installs are
// usually retryable and rank low.
var severityByCategory = map[Category]Severity{
	CategoryPackageManagement: SeverityLow,
	CategoryServiceManagement: SeverityMedium,
	CategoryPermissions:       SeverityHigh,
	CategoryNetwork:           SeverityHigh,
	CategoryFilesystem:        SeverityHigh,
	CategoryConfiguration:     SeverityMedium,
	CategoryUnknown:           SeverityMedium,
}

// actionsByCategory is the fixed suggested-actions lookup. Unknown has no
// suggestions; callers get an empty, non-nil slice.
var actionsByCategory = map[Category][]string{
	CategoryPackageManagement: {
		"Update package repositories",
		"Check package name for current OS",
		"Verify repository configuration",
	},
	CategoryServiceManagement: {
		"Check service unit exists",
		"Inspect service logs with journalctl",
		"Verify service dependencies are running",
	},
	CategoryPermissions: {
		"Check file ownership and mode",
		"Verify the executing user and sudo rules",
		"Review SELinux/AppArmor denials",
	},
	CategoryNetwork: {
		"Check connectivity to the target endpoint",
		"Verify DNS resolution",
		"Inspect firewall rules",
	},
	CategoryFilesystem: {
		"Check free disk space",
		"Verify mount points",
		"Confirm the expected path exists",
	},
	CategoryConfiguration: {
		"Validate configuration file syntax",
		"Diff against the last known-good configuration",
		"Check for recent configuration changes",
	},
	CategoryUnknown: {},
}
