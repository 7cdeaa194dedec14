// Package safety decides whether a remediation plan may be executed
// autonomously.
//
// Evaluate is a pure function of the plan and the error record: no I/O, no
// mutation, so the full rule table is unit-testable in isolation.
package safety

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/healerd/internal/classifier"
	"github.com/fyrsmithlabs/healerd/internal/planner"
)

// destructivePatterns is the fixed deny-list of command substrings that are
// never executed autonomously, matched case-insensitively against every fix
// command.
var destructivePatterns = []string{
	"rm -rf",
	"dd if=",
	"mkfs",
	"fdisk",
	"parted",
}

// Verdict is the accept/reject decision over a plan prior to execution.
type Verdict struct {
	Safe        bool     `json:"safe"`
	RiskFactors []string `json:"risk_factors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	// Reason is set iff Safe is false.
	Reason string `json:"reason,omitempty"`
}

// Gate evaluates remediation plans against the safety rules.
type Gate struct {
	// BlockOnConfirmation hard-blocks plans that request confirmation
	// instead of merely warning. Off by default: confirmation is advisory
	// in autonomous mode.
	BlockOnConfirmation bool
}

// NewGate returns a gate with the default advisory confirmation policy.
func NewGate() *Gate {
	return &Gate{}
}

// Evaluate applies the safety rules in order; the first failing rule sets
// Safe=false and records the reason.
//
// Rules:
//  1. High-risk plans are rejected outright.
//  2. Fix commands matching the destructive deny-list are rejected; every
//     matching command/pattern pair lands in RiskFactors.
//  3. Plans requesting confirmation pass with a warning (or are rejected,
//     when the gate's confirmation policy is blocking).
func (g *Gate) Evaluate(plan *planner.RemediationPlan, record *classifier.ErrorRecord) Verdict {
	if plan.RiskLevel == planner.RiskHigh {
		return Verdict{
			Safe:        false,
			RiskFactors: []string{"risk_level=high"},
			Reason:      "risk level too high for autonomous execution",
		}
	}

	var riskFactors []string
	for _, cmd := range plan.FixCommands {
		lower := strings.ToLower(cmd)
		for _, pattern := range destructivePatterns {
			if strings.Contains(lower, pattern) {
				riskFactors = append(riskFactors, fmt.Sprintf("%q matches %q", cmd, pattern))
			}
		}
	}
	if len(riskFactors) > 0 {
		return Verdict{
			Safe:        false,
			RiskFactors: riskFactors,
			Reason:      "destructive commands not allowed",
		}
	}

	verdict := Verdict{Safe: true}
	if plan.RequiresConfirmation {
		if g.BlockOnConfirmation {
			return Verdict{
				Safe:   false,
				Reason: "plan requires confirmation and confirmation policy is blocking",
			}
		}
		verdict.Warnings = append(verdict.Warnings,
			"plan requests confirmation; proceeding in autonomous mode")
	}
	return verdict
}
