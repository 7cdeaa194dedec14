package planner

import "time"

// RiskLevel is the declared risk of executing a remediation plan.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// perCommandCost is the fixed per-command estimate used to derive a plan's
// expected duration.
const perCommandCost = 30 * time.Second

// RemediationPlan is the structured output of the reasoning service:
// diagnostic, fix and verification command sequences plus a risk assessment.
//
// Valid is false when plan generation itself failed; such a plan carries no
// commands and short-circuits the healing pipeline.
type RemediationPlan struct {
	Valid                bool          `json:"valid"`
	Analysis             string        `json:"analysis"`
	DiagnosticCommands   []string      `json:"diagnostic_commands"`
	FixCommands          []string      `json:"fix_commands"`
	VerificationCommands []string      `json:"verification_commands"`
	RiskLevel            RiskLevel     `json:"risk_level"`
	RequiresConfirmation bool          `json:"requires_confirmation"`
	EstimatedDuration    time.Duration `json:"estimated_duration"`

	// RollbackPlan is surfaced verbatim when the reasoning service supplies
	// one. Rollback execution is not yet available; the field is recorded
	// for operators only.
	RollbackPlan string `json:"rollback_plan,omitempty"`
}

// CommandCount returns the total number of commands across all phases.
func (p *RemediationPlan) CommandCount() int {
	return len(p.DiagnosticCommands) + len(p.FixCommands) + len(p.VerificationCommands)
}

// HostProfile is optional descriptive data about a target machine used to
// bias plan generation toward the right package manager and init system.
type HostProfile struct {
	OS             string `json:"os,omitempty"`
	PackageManager string `json:"package_manager,omitempty"`
	InitSystem     string `json:"init_system,omitempty"`
}

// planResponse mirrors the JSON object the reasoning service is asked to
// produce. Pointer fields distinguish absent from zero so deterministic
// defaults can be filled.
type planResponse struct {
	Analysis             string   `json:"analysis"`
	DiagnosticCommands   []string `json:"diagnostic_commands"`
	FixCommands          []string `json:"fix_commands"`
	VerificationCommands []string `json:"verification_commands"`
	RiskLevel            string   `json:"risk_level"`
	RequiresConfirmation *bool    `json:"requires_confirmation"`
	RollbackPlan         string   `json:"rollback_plan"`
}
