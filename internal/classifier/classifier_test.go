package classifier

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name     string
		rawError string
		stderr   string
		want     Category
	}{
		{"package missing", "No package matching 'httpd' is available", "", CategoryPackageManagement},
		{"apt failure", "E: Unable to locate package nginx (apt)", "", CategoryPackageManagement},
		{"service down", "Failed to start nginx.service: Unit not found", "", CategoryServiceManagement},
		{"systemctl", "systemctl restart returned non-zero", "", CategoryServiceManagement},
		{"permission", "open /etc/shadow: permission denied", "", CategoryPermissions},
		{"network refused", "dial tcp 10.0.0.1:443: connection refused", "", CategoryNetwork},
		{"timeout", "request timeout after 30s", "", CategoryNetwork},
		{"disk full", "write /var/log/app.log: no space left on device", "", CategoryFilesystem},
		{"config", "yaml: line 12: syntax error", "", CategoryConfiguration},
		{"stderr considered", "task failed", "mount: /data: special device missing", CategoryFilesystem},
		{"nothing matches", "exit status 1", "", CategoryUnknown},
		{"case insensitive", "CONNECTION REFUSED by peer", "", CategoryNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.rawError, tt.stderr))
		})
	}
}

func TestCategorizeDeterministic(t *testing.T) {
	// Same input must always produce the same category, severity and actions.
	raw := "Failed to start httpd: permission denied on port 80"
	first := Categorize(raw, "")
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Categorize(raw, ""))
	}
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, SeverityLow, SeverityFor(CategoryPackageManagement))
	assert.Equal(t, SeverityMedium, SeverityFor(CategoryServiceManagement))
	assert.Equal(t, SeverityMedium, SeverityFor(CategoryConfiguration))
	assert.Equal(t, SeverityHigh, SeverityFor(CategoryNetwork))
	assert.Equal(t, SeverityHigh, SeverityFor(CategoryPermissions))
	assert.Equal(t, SeverityHigh, SeverityFor(CategoryFilesystem))
	assert.Equal(t, SeverityMedium, SeverityFor(CategoryUnknown))
	assert.Equal(t, SeverityMedium, SeverityFor(Category("bogus")))
}

func TestActionsFor(t *testing.T) {
	assert.NotEmpty(t, ActionsFor(CategoryPackageManagement))
	assert.Empty(t, ActionsFor(CategoryUnknown))

	// Returned slice is a copy; mutating it must not poison the table.
	actions := ActionsFor(CategoryNetwork)
	require.NotEmpty(t, actions)
	actions[0] = "mutated"
	assert.NotEqual(t, "mutated", ActionsFor(CategoryNetwork)[0])
}

func TestClassifyJenkinsPackageScenario(t *testing.T) {
	c := New(nil, nil)

	rec := c.ClassifyJenkins(JenkinsBuild{
		JobName:      "deploy-web",
		BuildNumber:  42,
		Stage:        "provision",
		ErrorMessage: "No package matching 'httpd' is available",
	})

	require.NotNil(t, rec)
	assert.Equal(t, SourceJenkins, rec.Source)
	assert.Equal(t, CategoryPackageManagement, rec.Category)
	assert.Equal(t, SeverityLow, rec.Severity)
	assert.NotEmpty(t, rec.SuggestedActions)
	assert.Equal(t, "deploy-web/provision", rec.TaskName)
	assert.Equal(t, "unknown", rec.Host, "missing host defaults to unknown")
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestClassifyAnsible(t *testing.T) {
	c := New(nil, nil)

	rec := c.ClassifyAnsible(AnsibleTaskResult{
		Host:     "web-01",
		TaskName: "Restart nginx",
		Module:   "systemd",
		Msg:      "Unable to restart service nginx",
	})

	assert.Equal(t, SourceAnsible, rec.Source)
	assert.Equal(t, "web-01", rec.Host)
	assert.Equal(t, CategoryServiceManagement, rec.Category)
	assert.Equal(t, "systemd", rec.Module)
}

func TestHistoryRecentAndClear(t *testing.T) {
	c := New(nil, nil)
	for i := 0; i < 5; i++ {
		c.Classify(SourceGeneric, fmt.Sprintf("error %d", i), "", "", "", "", "")
	}

	recent := c.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "error 2", recent[0].RawError)
	assert.Equal(t, "error 4", recent[2].RawError)

	assert.Len(t, c.Recent(100), 5)
	assert.Len(t, c.Export(), 5)

	c.Clear()
	assert.Empty(t, c.Recent(0))
}

func TestHistoryBounded(t *testing.T) {
	c := New(&Config{MaxHistory: 2}, nil)
	for i := 0; i < 5; i++ {
		c.Classify(SourceGeneric, fmt.Sprintf("error %d", i), "", "", "", "", "")
	}

	history := c.Export()
	require.Len(t, history, 2)
	assert.Equal(t, "error 3", history[0].RawError)
	assert.Equal(t, "error 4", history[1].RawError)
}

func TestSummaryLines(t *testing.T) {
	c := New(nil, nil)
	c.Classify(SourceWebhook, "connection refused", "", "", "db-01", "", "")

	lines := c.Summary()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "webhook")
	assert.Contains(t, lines[0], "network")
	assert.Contains(t, lines[0], "high")
}
