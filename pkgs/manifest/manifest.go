package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the file that marks an extension root.
const FileName = "ext.manifest"

var (
	ErrMissingName   = errors.New("missing required key \"name\"")
	ErrInvalidName   = errors.New("name is not a valid identifier")
	ErrDuplicateName = errors.New("duplicate extension name")
)

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Error reports a manifest that cannot be used.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Descriptor describes one extension found in a source tree.
type Descriptor struct {
	Name      string // registration symbol and artifact basename
	Path      string // manifest file
	RootDir   string // directory holding the manifest
	SourceDir string // RootDir/src, may not exist
}

// document is the decoded manifest. Keys other than name are ignored.
type document struct {
	Name *string `yaml:"name"`
}

// Parse decodes manifest data read from path.
func Parse(path string, data []byte) (*Descriptor, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	if doc.Name == nil || *doc.Name == "" {
		return nil, &Error{Path: path, Err: ErrMissingName}
	}
	if !validName.MatchString(*doc.Name) {
		return nil, &Error{Path: path, Err: fmt.Errorf("%w: %q", ErrInvalidName, *doc.Name)}
	}
	root := filepath.Dir(path)
	return &Descriptor{
		Name:      *doc.Name,
		Path:      path,
		RootDir:   root,
		SourceDir: filepath.Join(root, "src"),
	}, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return Parse(path, data)
}

// Scan walks root and yields a descriptor for every manifest found, in
// lexical path order. Hidden and nested directories are searched too. The
// sequence ends after the first error.
func Scan(root string) iter.Seq2[*Descriptor, error] {
	return func(yield func(*Descriptor, error) bool) {
		stopped := false
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || d.Name() != FileName {
				return nil
			}
			desc, err := Load(path)
			if err != nil {
				return err
			}
			if !yield(desc, nil) {
				stopped = true
				return fs.SkipAll
			}
			return nil
		})
		if err != nil && !stopped {
			yield(nil, err)
		}
	}
}

// ScanAll collects Scan into a slice and rejects duplicate names.
func ScanAll(root string) ([]*Descriptor, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scanning %s: not a directory", root)
	}
	var descs []*Descriptor
	for desc, err := range Scan(root) {
		if err != nil {
			return nil, err
		}
		descs = append(descs, desc)
	}
	if err := CheckDuplicates(descs); err != nil {
		return nil, err
	}
	return descs, nil
}

// CheckDuplicates fails if two descriptors share a name.
func CheckDuplicates(descs []*Descriptor) error {
	seen := make(map[string]*Descriptor, len(descs))
	for _, d := range descs {
		if prev, ok := seen[d.Name]; ok {
			return &Error{
				Path: d.Path,
				Err:  fmt.Errorf("%w %q, also declared by %s", ErrDuplicateName, d.Name, prev.Path),
			}
		}
		seen[d.Name] = d
	}
	return nil
}
