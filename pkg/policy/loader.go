package policy

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// parsers maps the file extensions understood by the Loader to their
// parsers. Definition files (.yaml, .yml, .json) carry the Rego source inline.
var parsers = map[string]func(path string, data []byte) (*Policy, error){
	".rego": parseRego,
	".yaml": parseDefinition,
	".yml":  parseDefinition,
	".json": parseDefinition,
}

// Loader reads policies from files and directories.
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{logger: logger.With().Str("component", "policy-loader").Logger()}
}

// LoadFromPaths loads every path in order. A file path must hold a valid
// policy. Directories are walked recursively; unreadable or malformed files
// below them are logged and skipped, other files are ignored.
func (l *Loader) LoadFromPaths(paths []string) ([]Policy, error) {
	var policies []Policy
	for _, root := range paths {
		files, explicit, err := policyFiles(root)
		if err != nil {
			return nil, fmt.Errorf("failed to load policies from %s: %w", root, err)
		}
		for _, path := range files {
			p, err := loadFile(path)
			if err != nil {
				if explicit {
					return nil, err
				}
				l.logger.Warn().Err(err).Str("path", path).Msg("Skipping policy file")
				continue
			}
			l.logger.Debug().Str("path", path).Str("policy", p.Name).Msg("Loaded policy")
			policies = append(policies, *p)
		}
	}
	return policies, nil
}

// policyFiles returns root itself when it names a file, otherwise the policy
// files below it in lexical order.
func policyFiles(root string) (files []string, explicit bool, err error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, false, err
	}
	if !info.IsDir() {
		return []string{root}, true, nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if _, ok := parsers[filepath.Ext(path)]; ok && !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files, false, err
}

func loadFile(path string) (*Policy, error) {
	parse, ok := parsers[filepath.Ext(path)]
	if !ok {
		return nil, fmt.Errorf("unsupported policy file %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := parse(path, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.Source = path
	return p, nil
}

// parseRego names the policy after its file. The leading comment block
// becomes the description; violations block admission unless a deny rule
// declares a lower severity itself.
func parseRego(path string, data []byte) (*Policy, error) {
	return &Policy{
		Name:        strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Description: leadingComment(data),
		Rego:        string(data),
		Severity:    SeverityError,
		Enabled:     true,
	}, nil
}

type definition struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Severity    Severity `yaml:"severity"`
	Enabled     *bool    `yaml:"enabled"`
	Tags        []string `yaml:"tags"`
	Rego        string   `yaml:"rego"`
}

// parseDefinition decodes a YAML or JSON policy definition. Severity defaults
// to warning and policies are enabled unless they say otherwise.
func parseDefinition(_ string, data []byte) (*Policy, error) {
	var def definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to decode policy definition: %w", err)
	}
	if def.Name == "" {
		return nil, errors.New("policy definition has no name")
	}
	if strings.TrimSpace(def.Rego) == "" {
		return nil, fmt.Errorf("policy %s has no rego source", def.Name)
	}

	p := &Policy{
		Name:        def.Name,
		Description: def.Description,
		Rego:        def.Rego,
		Severity:    def.Severity,
		Enabled:     def.Enabled == nil || *def.Enabled,
		Tags:        def.Tags,
	}
	switch p.Severity {
	case "":
		p.Severity = SeverityWarning
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
	default:
		return nil, fmt.Errorf("policy %s has unknown severity %q", def.Name, def.Severity)
	}
	return p, nil
}

// leadingComment joins the "#" lines before the first statement.
func leadingComment(data []byte) string {
	var words []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		text, ok := strings.CutPrefix(line, "#")
		if !ok {
			break
		}
		if text = strings.TrimSpace(text); text != "" {
			words = append(words, text)
		}
	}
	return strings.Join(words, " ")
}
