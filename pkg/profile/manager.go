package profile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

// profileExtensions are tried in order during discovery.
var profileExtensions = []string{".yaml", ".yml", ".json"}

// Manager discovers, loads, resolves, and caches profiles. Directories are
// scanned in order; the first file matching a name wins. The cache holds
// fully resolved profiles and serves clones so callers cannot mutate it.
type Manager struct {
	dirs []string
	log  *slog.Logger

	mu    sync.RWMutex
	cache map[string]*Profile
}

// NewManager builds a manager over the given search directories.
func NewManager(dirs []string, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		dirs:  append([]string(nil), dirs...),
		log:   log,
		cache: map[string]*Profile{},
	}
}

// List returns the names of every discoverable profile, sorted. Shadowed
// duplicates in later directories are listed once.
func (m *Manager) List() []string {
	seen := map[string]bool{}
	for _, dir := range m.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if containsString(profileExtensions, ext) {
				seen[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load returns the profile by name. With resolveInheritance the full parent
// chain is flattened and the result cached; without it the file content is
// returned as-is.
func (m *Manager) Load(name string, resolveInheritance bool) (*Profile, error) {
	if resolveInheritance {
		m.mu.RLock()
		cached, ok := m.cache[name]
		m.mu.RUnlock()
		if ok {
			return cached.Clone(), nil
		}
	}

	p, err := m.loadFile(name)
	if err != nil {
		return nil, err
	}
	if !resolveInheritance {
		return p, nil
	}

	resolved, err := m.resolve(name, map[string]bool{})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[name] = resolved.Clone()
	m.mu.Unlock()
	m.log.Debug("profile resolved", "name", name, "parents", len(p.InheritsFrom))
	return resolved, nil
}

// Save writes a profile to dir in the requested format ("yaml" or "json").
func (m *Manager) Save(p *Profile, dir, format string) (string, error) {
	if issues := p.Validate(); len(issues) > 0 {
		return "", &ValidationError{Profile: p.Name, Issues: issues}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("profile: create %s: %w", dir, err)
	}

	var (
		body []byte
		err  error
		ext  string
	)
	switch format {
	case "yaml":
		body, err = yaml.Marshal(p)
		ext = ".yaml"
	case "json":
		body, err = json.MarshalIndent(p, "", "  ")
		ext = ".json"
	default:
		return "", fmt.Errorf("profile: unsupported save format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("profile: encode %s: %w", p.Name, err)
	}

	path := filepath.Join(dir, p.Name+ext)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("profile: write %s: %w", path, err)
	}
	return path, nil
}

// Validate returns the problem list for a profile, empty when valid.
func (m *Manager) Validate(p *Profile) []string {
	return p.Validate()
}

// CreateComposite merges already-resolved profiles left-to-right into a new
// standalone profile.
func (m *Manager) CreateComposite(names []string, name string) (*Profile, error) {
	if len(names) == 0 {
		return nil, &ValidationError{Profile: name, Issues: []string{"composite needs at least one source profile"}}
	}
	out := &Profile{
		Name:        name,
		VisualRules: map[pii.Type]bool{},
		TextRules:   map[pii.Type]bool{},
	}
	for _, n := range names {
		p, err := m.Load(n, true)
		if err != nil {
			return nil, err
		}
		out.merge(p)
	}
	out.Name = name
	out.Description = fmt.Sprintf("composite of %s", strings.Join(names, ", "))
	out.InheritsFrom = nil
	return out, nil
}

// ClearCache drops all cached resolved profiles.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	m.cache = map[string]*Profile{}
	m.mu.Unlock()
}

// resolve flattens the inheritance chain for name. The seen set tracks the
// current resolution path; revisiting a member means a cycle.
func (m *Manager) resolve(name string, seen map[string]bool) (*Profile, error) {
	if seen[name] {
		return nil, &ValidationError{Profile: name, Issues: []string{"circular inheritance"}}
	}
	seen[name] = true
	defer delete(seen, name)

	child, err := m.loadFile(name)
	if err != nil {
		return nil, err
	}
	if len(child.InheritsFrom) == 0 {
		resolved := child.Clone()
		resolved.InheritsFrom = nil
		return resolved, nil
	}

	// Parents merge left-to-right, later parents overriding earlier ones,
	// then the child overlays the result.
	acc := &Profile{
		Name:        child.Name,
		VisualRules: map[pii.Type]bool{},
		TextRules:   map[pii.Type]bool{},
	}
	for _, parent := range child.InheritsFrom {
		resolvedParent, err := m.resolve(parent, seen)
		if err != nil {
			return nil, err
		}
		acc.merge(resolvedParent)
	}
	acc.merge(child)
	acc.Name = child.Name
	acc.InheritsFrom = nil
	return acc, nil
}

// loadFile reads and validates one profile file without resolving parents.
// The built-in default is synthesized when no file shadows it.
func (m *Manager) loadFile(name string) (*Profile, error) {
	path, ok := m.find(name)
	if !ok {
		if name == "default" {
			return builtinDefault(), nil
		}
		return nil, &ValidationError{Profile: name, Issues: []string{"profile not found"}}
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}

	var raw map[string]any
	p := &Profile{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, &ValidationError{Profile: name, Issues: []string{"malformed json: " + err.Error()}}
		}
		if err := validateSchema(raw); err != nil {
			return nil, &ValidationError{Profile: name, Issues: []string{err.Error()}}
		}
		if err := json.Unmarshal(body, p); err != nil {
			return nil, &ValidationError{Profile: name, Issues: []string{err.Error()}}
		}
	} else {
		if err := yaml.Unmarshal(body, &raw); err != nil {
			return nil, &ValidationError{Profile: name, Issues: []string{"malformed yaml: " + err.Error()}}
		}
		if err := validateSchema(raw); err != nil {
			return nil, &ValidationError{Profile: name, Issues: []string{err.Error()}}
		}
		if err := yaml.Unmarshal(body, p); err != nil {
			return nil, &ValidationError{Profile: name, Issues: []string{err.Error()}}
		}
	}

	if issues := p.Validate(); len(issues) > 0 {
		return nil, &ValidationError{Profile: name, Issues: issues}
	}
	return p, nil
}

func (m *Manager) find(name string) (string, bool) {
	for _, dir := range m.dirs {
		for _, ext := range profileExtensions {
			path := filepath.Join(dir, name+ext)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, true
			}
		}
	}
	return "", false
}

// builtinDefault is the rule set used when no "default" profile file exists:
// every visual and common text category on, balanced threshold.
func builtinDefault() *Profile {
	return &Profile{
		Name:        "default",
		Description: "Built-in default redaction profile",
		Version:     "1.0.0",
		VisualRules: map[pii.Type]bool{
			pii.TypeFace:      true,
			pii.TypeSignature: true,
			pii.TypeBarcode:   true,
			pii.TypeQRCode:    true,
		},
		TextRules: map[pii.Type]bool{
			pii.TypeName:        true,
			pii.TypeEmail:       true,
			pii.TypePhone:       true,
			pii.TypeAddress:     true,
			pii.TypeSSN:         true,
			pii.TypeIDNumber:    true,
			pii.TypeCreditCard:  true,
			pii.TypeDateOfBirth: true,
			pii.TypeIPAddress:   true,
		},
		RedactionStyle:      StyleSolidBlack,
		ConfidenceThreshold: 0.5,
	}
}
