// Package classifier turns raw pipeline failure reports into structured,
// categorized error records.
//
// Categorization is keyword matching over the lower-cased error text using an
// ordered rule table; the first matching rule wins and the order is fixed so
// identical input always yields the same record. Severity and suggested
// actions are total functions of the category.
package classifier

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// rule pairs a category with the keywords that select it.
type rule struct {
	category Category
	keywords []string
}

// rules is evaluated top to bottom; order is load-bearing for determinism
// and must not be reshuffled.
var rules = []rule{
	{CategoryPackageManagement, []string{
		"no package", "package not found", "unable to install", "yum", "apt", "dnf", "rpm",
	}},
	{CategoryServiceManagement, []string{
		"service", "systemctl", "daemon", "failed to start", "unit not found",
	}},
	{CategoryPermissions, []string{
		"permission denied", "access denied", "unauthorized", "forbidden", "sudo",
	}},
	{CategoryNetwork, []string{
		"connection refused", "timeout", "unreachable", "network", "dns", "no route to host",
	}},
	{CategoryFilesystem, []string{
		"no space left", "disk", "mount", "read-only file system", "file not found", "no such file",
	}},
	{CategoryConfiguration, []string{
		"syntax error", "invalid config", "configuration", "malformed", "parse error",
	}},
}

// Categorize returns the category for the given error text. It never fails;
// unmatched text maps to CategoryUnknown.
func Categorize(rawError, stderr string) Category {
	text := strings.ToLower(rawError + " " + stderr)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.category
			}
		}
	}
	return CategoryUnknown
}

// SeverityFor returns the fixed severity for a category.
func SeverityFor(c Category) Severity {
	if s, ok := severityByCategory[c]; ok {
		return s
	}
	return SeverityMedium
}

// ActionsFor returns the fixed suggested actions for a category. The result
// is a copy; callers may not mutate the table.
func ActionsFor(c Category) []string {
	actions := actionsByCategory[c]
	out := make([]string, len(actions))
	copy(out, actions)
	return out
}

// Classifier produces error records and keeps a bounded in-memory history of
// everything it has classified.
type Classifier struct {
	logger     *zap.Logger
	maxHistory int

	mu      sync.Mutex
	history []*ErrorRecord
}

// Config configures the classifier.
type Config struct {
	// MaxHistory caps the retained record history. Zero means unbounded.
	MaxHistory int `koanf:"max_history"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{MaxHistory: 500}
}

// New creates a classifier. A nil logger is replaced with a no-op logger.
func New(cfg *Config, logger *zap.Logger) *Classifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		logger:     logger,
		maxHistory: cfg.MaxHistory,
	}
}

// Classify builds an error record from a generic source-tagged payload and
// records it in history.
func (c *Classifier) Classify(source Source, rawError, stdout, stderr, host, taskName, module string) *ErrorRecord {
	if host == "" {
		host = "unknown"
	}
	category := Categorize(rawError, stderr)
	rec := &ErrorRecord{
		ID:               uuid.New().String(),
		Timestamp:        time.Now(),
		Source:           source,
		RawError:         rawError,
		Stdout:           stdout,
		Stderr:           stderr,
		Host:             host,
		TaskName:         taskName,
		Module:           module,
		Category:         category,
		Severity:         SeverityFor(category),
		SuggestedActions: ActionsFor(category),
	}
	c.append(rec)

	c.logger.Debug("classified failure",
		zap.String("source", string(source)),
		zap.String("category", string(category)),
		zap.String("severity", string(rec.Severity)),
		zap.String("host", host),
	)

	return rec
}

// ClassifyJenkins builds an error record from a Jenkins build report.
func (c *Classifier) ClassifyJenkins(build JenkinsBuild) *ErrorRecord {
	task := build.JobName
	if build.Stage != "" {
		task = build.JobName + "/" + build.Stage
	}
	return c.Classify(SourceJenkins, build.ErrorMessage, build.ConsoleOutput, "", build.Node, task, "")
}

// ClassifyAnsible builds an error record from one failed Ansible task result.
func (c *Classifier) ClassifyAnsible(result AnsibleTaskResult) *ErrorRecord {
	return c.Classify(SourceAnsible, result.Msg, result.Stdout, result.Stderr,
		result.Host, result.TaskName, result.Module)
}

func (c *Classifier) append(rec *ErrorRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, rec)
	if c.maxHistory > 0 && len(c.history) > c.maxHistory {
		c.history = c.history[len(c.history)-c.maxHistory:]
	}
}

// Recent returns up to n records, most recent last. n <= 0 returns all
// retained records.
func (c *Classifier) Recent(n int) []*ErrorRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n > len(c.history) {
		n = len(c.history)
	}
	out := make([]*ErrorRecord, n)
	copy(out, c.history[len(c.history)-n:])
	return out
}

// Clear drops the retained history.
func (c *Classifier) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// Export returns a copy of the full retained history.
func (c *Classifier) Export() []*ErrorRecord {
	return c.Recent(0)
}

// Summary returns one audit line per retained record.
func (c *Classifier) Summary() []string {
	records := c.Recent(0)
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = r.SummaryLine()
	}
	return lines
}
