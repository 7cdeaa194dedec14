// Package ansible runs playbooks, extracts task failures from their console
// output, and retries playbook runs after successful healings.
package ansible

import (
	"strings"
)

// TaskFailure is one failed task extracted from playbook console output.
type TaskFailure struct {
	Host     string `json:"host"`
	TaskName string `json:"task_name"`
	Detail   string `json:"detail"`
}

// ParseFailures scans playbook console output for failed tasks.
//
// A line containing "fatal:" or "failed:" opens a failure block, unless the
// failure was ignored ("...ignoring"). The block captures the host from the
// bracketed marker and accumulates detail lines until the next task or play
// boundary or a blank line. The task name is the most recent "TASK [...]"
// header above the block.
func ParseFailures(console string) []TaskFailure {
	var failures []TaskFailure
	var current *TaskFailure
	currentTask := ""

	flush := func() {
		if current != nil {
			current.Detail = strings.TrimSpace(current.Detail)
			// "...ignoring" may trail the block on its own line.
			if !strings.Contains(current.Detail, "...ignoring") {
				failures = append(failures, *current)
			}
			current = nil
		}
	}

	for _, line := range strings.Split(console, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "TASK ["):
			flush()
			currentTask = taskName(trimmed)
			continue
		case strings.HasPrefix(trimmed, "PLAY RECAP"), strings.HasPrefix(trimmed, "PLAY "):
			flush()
			continue
		case trimmed == "":
			flush()
			continue
		}

		if isFailureMarker(trimmed) {
			flush()
			current = &TaskFailure{
				Host:     markerHost(trimmed),
				TaskName: currentTask,
				Detail:   trimmed,
			}
			continue
		}

		if current != nil {
			current.Detail += "\n" + trimmed
		}
	}
	flush()

	return failures
}

// isFailureMarker reports whether the line opens a failure block. Ignored
// failures are Ansible's own "this is fine" signal and are skipped.
func isFailureMarker(line string) bool {
	if strings.Contains(line, "...ignoring") {
		return false
	}
	return strings.Contains(line, "fatal:") || strings.Contains(line, "failed:")
}

// markerHost extracts the host from a "fatal: [host]: ..." or
// "failed: [host] ..." marker line.
func markerHost(line string) string {
	start := strings.Index(line, "[")
	if start == -1 {
		return ""
	}
	end := strings.Index(line[start:], "]")
	if end == -1 {
		return ""
	}
	return line[start+1 : start+end]
}

// taskName extracts the name from a "TASK [name] ****" header.
func taskName(line string) string {
	start := strings.Index(line, "[")
	end := strings.LastIndex(line, "]")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return line[start+1 : end]
}
