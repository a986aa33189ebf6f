package platform

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/goplus/extender/pkgs/toolchain"
)

var (
	// ErrUnknownPlatform is returned by Lookup for an identifier that has no
	// configuration.
	ErrUnknownPlatform = errors.New("unknown platform")

	// ErrInvalidPlatform is wrapped by Validate failures.
	ErrInvalidPlatform = errors.New("invalid platform")
)

// Stage placeholders provided by the build pipeline. Any other placeholder a
// template uses must be declared in Platform.Vars.
var (
	CompileKeys = []string{"src", "tgt", "includes", "name"}
	ArchiveKeys = []string{"tgt", "objs", "name"}
	LinkKeys    = []string{"src", "main", "registration", "tgt", "symbols", "workspace"}
)

// Format selects the decoder used by Parse.
type Format int

const (
	YAML Format = iota
	TOML
)

// FormatOf picks a Format from a file name extension. Anything other than
// .toml is treated as YAML.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return TOML
	}
	return YAML
}

// Platform describes how to drive the native toolchain of one target.
type Platform struct {
	ID string `yaml:"-" toml:"-"`

	// Command templates, see package toolchain for the placeholder syntax.
	Compile string `yaml:"compile" toml:"compile"`
	Archive string `yaml:"archive" toml:"archive"`
	Link    string `yaml:"link" toml:"link"`

	// Includes are the fixed include directories prepended to every
	// compile's includes list.
	Includes []string `yaml:"includes" toml:"includes"`

	// Vars are extra placeholder values available to all three templates,
	// each a string or a list of strings.
	Vars map[string]any `yaml:"vars" toml:"vars"`

	// Env is merged over the process environment for toolchain commands.
	Env map[string]string `yaml:"env" toml:"env"`

	ObjectSuffix  string `yaml:"object_suffix" toml:"object_suffix"`
	ArchivePrefix string `yaml:"archive_prefix" toml:"archive_prefix"`
	ArchiveSuffix string `yaml:"archive_suffix" toml:"archive_suffix"`
	ExeSuffix     string `yaml:"exe_suffix" toml:"exe_suffix"`
}

// Config maps platform identifiers to their toolchain description.
type Config struct {
	Platforms map[string]*Platform `yaml:"platforms" toml:"platforms"`
}

// Load reads a platform configuration file. The format follows the file
// extension.
func Load(path string, log *zap.Logger) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading platform config: %w", err)
	}
	cfg, err := Parse(data, FormatOf(path), log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a platform configuration document and validates every
// platform in it.
func Parse(data []byte, format Format, log *zap.Logger) (*Config, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var cfg Config
	switch format {
	case TOML:
		md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing platform config: %w", err)
		}
		for _, key := range md.Undecoded() {
			log.Warn("ignoring unknown platform config key", zap.String("key", key.String()))
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing platform config: %w", err)
		}
	}

	for id, p := range cfg.Platforms {
		if p == nil {
			return nil, fmt.Errorf("platform %q: %w: empty definition", id, ErrInvalidPlatform)
		}
		p.ID = id
		if err := p.normalize(); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// Lookup returns the platform registered under id.
func (c *Config) Lookup(id string) (*Platform, error) {
	if c != nil {
		if p, ok := c.Platforms[id]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q (configured: %s)", ErrUnknownPlatform, id, strings.Join(c.IDs(), ", "))
}

// IDs returns the configured platform identifiers in sorted order.
func (c *Config) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.Platforms))
	for id := range c.Platforms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// normalize applies defaults and converts decoded Vars to string or
// []string values.
func (p *Platform) normalize() error {
	if p.ObjectSuffix == "" {
		p.ObjectSuffix = ".o"
	}
	if p.ArchivePrefix == "" {
		p.ArchivePrefix = "lib"
	}
	if p.ArchiveSuffix == "" {
		p.ArchiveSuffix = ".a"
	}
	for k, v := range p.Vars {
		switch v := v.(type) {
		case string:
		case []any:
			list := make([]string, 0, len(v))
			for _, elem := range v {
				switch elem.(type) {
				case map[string]any, []any:
					return fmt.Errorf("platform %q: %w: var %q: nested values are not supported", p.ID, ErrInvalidPlatform, k)
				}
				list = append(list, fmt.Sprint(elem))
			}
			p.Vars[k] = list
		case []string:
		case map[string]any:
			return fmt.Errorf("platform %q: %w: var %q: tables are not supported", p.ID, ErrInvalidPlatform, k)
		default:
			p.Vars[k] = fmt.Sprint(v)
		}
	}
	return nil
}

// Validate checks that all three templates are present, parse, and only
// reference placeholders the pipeline or Vars can supply. An undefined
// placeholder is reported as a *toolchain.TemplateError wrapping
// toolchain.ErrMissingKey.
func (p *Platform) Validate() error {
	check := func(stage, tmpl string, keys []string) error {
		if strings.TrimSpace(tmpl) == "" {
			return fmt.Errorf("platform %q: %w: missing %s template", p.ID, ErrInvalidPlatform, stage)
		}
		names, err := toolchain.Placeholders(tmpl)
		if err != nil {
			return fmt.Errorf("platform %q: %s: %w", p.ID, stage, err)
		}
		for _, name := range names {
			if contains(keys, name) {
				continue
			}
			if _, ok := p.Vars[name]; ok {
				continue
			}
			return fmt.Errorf("platform %q: %w: %s template: %w", p.ID, ErrInvalidPlatform, stage,
				&toolchain.TemplateError{Template: tmpl, Key: name, Err: toolchain.ErrMissingKey})
		}
		return nil
	}
	if err := check("compile", p.Compile, CompileKeys); err != nil {
		return err
	}
	if err := check("archive", p.Archive, ArchiveKeys); err != nil {
		return err
	}
	return check("link", p.Link, LinkKeys)
}

// Context returns the Vars as a rendering context.
func (p *Platform) Context() toolchain.Context {
	ctx := make(toolchain.Context, len(p.Vars))
	for k, v := range p.Vars {
		ctx[k] = v
	}
	return ctx
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
