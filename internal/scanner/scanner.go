// SPDX-License-Identifier: MPL-2.0

// Package scanner finds the type declarations that discovery resolves against
// the registry.
//
// Traversal is deterministic: at every directory level files come before
// subdirectories and both are sorted lexicographically. Directories the Go
// toolchain ignores (testdata and names starting with "." or "_") are skipped.
package scanner

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/cfgweave/cfgweave/pkg/types"
)

const (
	// KindStruct is a struct type declaration.
	KindStruct Kind = iota
	// KindInterface is an interface declaration. Interfaces never resolve to
	// instances and are skipped by discovery.
	KindInterface
	// KindOther is any other defined type (func, map, named scalar).
	KindOther
	// KindGeneric is a parameterized type. It cannot be instantiated by name
	// and is skipped like an interface.
	KindGeneric
)

type (
	// Kind classifies a declaration.
	Kind uint8

	// Declaration is an exported type found in a source file.
	Declaration struct {
		ID   types.TypeID
		Kind Kind
		// File is the path of the declaring file.
		File string
	}

	// Entry is a glob match.
	Entry struct {
		Path string
		Dir  bool
	}

	// Scanner lists the declarations below a directory and expands location
	// patterns.
	Scanner interface {
		// Scan returns every exported type declared below dir in traversal
		// order. A missing dir yields no declarations.
		Scan(dir string) ([]Declaration, error)
		// Glob expands a doublestar pattern. Files are listed before
		// directories, each group sorted by path.
		Glob(pattern string) ([]Entry, error)
	}

	// GoSource scans Go source files on an afero filesystem.
	GoSource struct {
		fs      afero.Fs
		baseDir string
	}

	// Option configures a GoSource.
	Option func(*GoSource)
)

// String returns the lower case kind name.
func (k Kind) String() string {
	switch k {
	case KindStruct:
		return "struct"
	case KindInterface:
		return "interface"
	case KindGeneric:
		return "generic"
	default:
		return "other"
	}
}

// Abstract reports whether declarations of this kind are exempt from
// resolution.
func (k Kind) Abstract() bool {
	return k == KindInterface || k == KindGeneric
}

// WithBaseDir sets the directory relative patterns and paths are resolved
// against. Defaults to "/".
func WithBaseDir(dir string) Option {
	return func(s *GoSource) { s.baseDir = dir }
}

// NewGoSource creates a scanner reading from fs.
func NewGoSource(fs afero.Fs, opts ...Option) *GoSource {
	s := &GoSource{fs: fs, baseDir: "/"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan implements Scanner.
func (s *GoSource) Scan(dir string) ([]Declaration, error) {
	dir = s.abs(dir)
	info, err := s.fs.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	var out []Declaration
	if err := s.walk(dir, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GoSource) walk(dir string, out *[]Declaration) error {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return err
	}

	var files, dirs []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			if !ignoredDir(name) {
				dirs = append(dirs, filepath.Join(dir, name))
			}
			continue
		}
		if strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	slices.Sort(files)
	slices.Sort(dirs)

	for _, f := range files {
		decls, err := s.parseFile(f)
		if err != nil {
			return err
		}
		*out = append(*out, decls...)
	}
	for _, d := range dirs {
		if err := s.walk(d, out); err != nil {
			return err
		}
	}
	return nil
}

func (s *GoSource) parseFile(file string) ([]Declaration, error) {
	src, err := afero.ReadFile(s.fs, file)
	if err != nil {
		return nil, err
	}
	f, err := parser.ParseFile(token.NewFileSet(), file, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, &ParseError{File: file, Err: err}
	}

	var out []Declaration
	for _, decl := range f.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok || !ts.Name.IsExported() || ts.Assign.IsValid() {
				continue
			}
			out = append(out, Declaration{
				ID:   types.NewTypeID(f.Name.Name, ts.Name.Name),
				Kind: kindOf(ts),
				File: file,
			})
		}
	}
	return out, nil
}

func kindOf(ts *ast.TypeSpec) Kind {
	if ts.TypeParams != nil && len(ts.TypeParams.List) > 0 {
		return KindGeneric
	}
	switch ts.Type.(type) {
	case *ast.StructType:
		return KindStruct
	case *ast.InterfaceType:
		return KindInterface
	}
	return KindOther
}

// Glob implements Scanner.
func (s *GoSource) Glob(pattern string) ([]Entry, error) {
	pattern = filepath.ToSlash(s.abs(strings.TrimRight(pattern, `/\`)))
	if !doublestar.ValidatePattern(pattern) {
		return nil, &PatternError{Pattern: pattern}
	}

	root := afero.NewIOFS(afero.NewBasePathFs(s.fs, "/"))
	matches, err := doublestar.Glob(root, strings.TrimPrefix(pattern, "/"))
	if err != nil {
		return nil, err
	}

	var files, dirs []Entry
	for _, m := range matches {
		p := filepath.FromSlash(path.Join("/", m))
		info, err := s.fs.Stat(p)
		if err != nil {
			continue
		}
		if info.IsDir() {
			dirs = append(dirs, Entry{Path: p, Dir: true})
		} else {
			files = append(files, Entry{Path: p})
		}
	}
	byPath := func(a, b Entry) int { return strings.Compare(a.Path, b.Path) }
	slices.SortFunc(files, byPath)
	slices.SortFunc(dirs, byPath)
	return append(files, dirs...), nil
}

func (s *GoSource) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.baseDir, p)
}

func ignoredDir(name string) bool {
	return name == "testdata" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}
