package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Loader loads custom rules from files: bare Rego modules (.rego), bare
// Starlark scripts (.star), and YAML manifests (.yaml/.yml) wrapping either
// kind with explicit metadata.
type Loader struct {
	logger  zerolog.Logger
	timeout time.Duration
	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewLoader creates a rule loader. The timeout bounds Starlark rule
// execution.
func NewLoader(logger zerolog.Logger, timeout time.Duration) *Loader {
	return &Loader{
		logger:  logger.With().Str("component", "rule-loader").Logger(),
		timeout: timeout,
	}
}

// ruleManifest is the YAML manifest shape.
type ruleManifest struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Severity    string `yaml:"severity"`
	Kind        string `yaml:"kind"`
	Source      string `yaml:"source"`
	File        string `yaml:"file"`
}

// LoadFromPaths loads rules from files and directories. Directories are
// walked recursively. A file that fails to load is skipped with a warning so
// one bad rule cannot take out the rest of the set.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Rule, error) {
	var rules []Rule

	for _, path := range paths {
		loaded, err := l.loadFromPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load rules from %s: %w", path, err)
		}
		rules = append(rules, loaded...)
	}

	l.logger.Info().
		Int("total", len(rules)).
		Int("sources", len(paths)).
		Msg("Custom rules loaded")

	return rules, nil
}

func (l *Loader) loadFromPath(ctx context.Context, path string) ([]Rule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if !info.IsDir() {
		rule, err := l.loadFromFile(ctx, path)
		if err != nil {
			return nil, err
		}
		return []Rule{rule}, nil
	}

	var rules []Rule
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !ruleFile(p) {
			return nil
		}
		rule, err := l.loadFromFile(ctx, p)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", p).Msg("Failed to load rule file")
			return nil
		}
		rules = append(rules, rule)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return rules, nil
}

func (l *Loader) loadFromFile(ctx context.Context, path string) (Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	base := filepath.Base(path)
	id := "custom/" + strings.TrimSuffix(base, filepath.Ext(base))

	var rule Rule
	switch filepath.Ext(path) {
	case ".rego":
		rule, err = NewRegoRule(ctx, id, commentDescription(string(data), "#"), SeverityWarning, string(data))
	case ".star":
		rule = NewStarlarkRule(id, commentDescription(string(data), "#"), SeverityWarning, base, string(data), l.timeout)
	case ".yaml", ".yml":
		rule, err = l.loadManifest(ctx, path, data)
	default:
		return nil, fmt.Errorf("unsupported rule file type: %s", path)
	}
	if err != nil {
		return nil, err
	}

	l.logger.Debug().
		Str("path", path).
		Str("rule", rule.ID()).
		Msg("Rule loaded from file")

	return rule, nil
}

// loadManifest parses a YAML rule manifest. Source comes inline or from a
// file relative to the manifest.
func (l *Loader) loadManifest(ctx context.Context, path string, data []byte) (Rule, error) {
	var m ruleManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse rule manifest: %w", err)
	}

	if m.ID == "" {
		return nil, fmt.Errorf("rule manifest %s has no id", path)
	}
	severity := SeverityWarning
	if m.Severity != "" {
		parsed, err := ParseSeverity(m.Severity)
		if err != nil {
			return nil, fmt.Errorf("rule manifest %s: %w", path, err)
		}
		severity = parsed
	}

	source := m.Source
	filename := filepath.Base(path)
	if source == "" {
		if m.File == "" {
			return nil, fmt.Errorf("rule manifest %s has neither source nor file", path)
		}
		sourcePath := m.File
		if !filepath.IsAbs(sourcePath) {
			sourcePath = filepath.Join(filepath.Dir(path), sourcePath)
		}
		data, err := os.ReadFile(sourcePath)
		if err != nil {
			return nil, fmt.Errorf("rule manifest %s: failed to read source: %w", path, err)
		}
		source = string(data)
		filename = filepath.Base(sourcePath)
	}

	switch m.Kind {
	case "rego":
		return NewRegoRule(ctx, m.ID, m.Description, severity, source)
	case "starlark":
		return NewStarlarkRule(m.ID, m.Description, severity, filename, source, l.timeout), nil
	default:
		return nil, fmt.Errorf("rule manifest %s has unknown kind %q", path, m.Kind)
	}
}

// Watch watches the given paths and invokes reloadFn with the freshly loaded
// rule set after changes settle. Events are debounced; the watch stops when
// the context is cancelled.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]Rule) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}
		if info.IsDir() {
			err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return watcher.Add(p)
				}
				return nil
			})
		} else {
			err = watcher.Add(path)
		}
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch path")
		}
	}

	go l.processEvents(ctx, paths, reloadFn)

	l.logger.Info().Int("paths", len(paths)).Msg("Started watching rule paths")
	return nil
}

func (l *Loader) processEvents(ctx context.Context, paths []string, reloadFn func([]Rule) error) {
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = l.StopWatching()
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 || !ruleFile(event.Name) {
				continue
			}
			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Rule file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				rules, err := l.LoadFromPaths(ctx, paths)
				if err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload rules")
					return
				}
				if err := reloadFn(rules); err != nil {
					l.logger.Error().Err(err).Msg("Failed to apply reloaded rules")
					return
				}
				l.logger.Info().Int("count", len(rules)).Msg("Rules reloaded")
			})

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// StopWatching stops the file watcher.
func (l *Loader) StopWatching() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher != nil {
		err := l.watcher.Close()
		l.watcher = nil
		return err
	}
	return nil
}

func ruleFile(path string) bool {
	switch filepath.Ext(path) {
	case ".rego", ".star", ".yaml", ".yml":
		return true
	}
	return false
}

// commentDescription collects the leading comment lines of a rule source
// file as its description.
func commentDescription(source, marker string) string {
	var b strings.Builder
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, marker) {
			if trimmed == "" && b.Len() == 0 {
				continue
			}
			break
		}
		comment := strings.TrimSpace(strings.TrimPrefix(trimmed, marker))
		if comment == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(comment)
	}
	return b.String()
}
