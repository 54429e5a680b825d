package meta

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var definitionSource []byte

//go:embed builtin/*.cue
var builtinFS embed.FS

// Loader decodes schema declarations from CUE. Each file declares entities
// under a top-level "schemas" struct:
//
//	schemas: employees: {
//		apiEndPoint: "/api/hr/employees"
//		fields: [{key: "firstName", formRelated: {required: true}}]
//	}
//
// Every entry is unified with #Schema, validated as concrete, then decoded.
type Loader struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewLoader compiles the embedded definitions.
func NewLoader() (*Loader, error) {
	ctx := cuecontext.New()
	defs := ctx.CompileBytes(definitionSource, cue.Filename("schema.cue"))
	if err := defs.Err(); err != nil {
		return nil, fmt.Errorf("compiling schema definitions: %w", err)
	}
	schema := defs.LookupPath(cue.ParsePath("#Schema"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("looking up #Schema: %w", err)
	}
	return &Loader{ctx: ctx, schema: schema}, nil
}

// LoadBytes decodes all schemas declared in one CUE source.
func (l *Loader) LoadBytes(filename string, src []byte) ([]*SchemaMeta, error) {
	v := l.ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compiling %s: %w", filename, err)
	}
	root := v.LookupPath(cue.ParsePath("schemas"))
	if !root.Exists() {
		return nil, nil
	}
	iter, err := root.Fields()
	if err != nil {
		return nil, fmt.Errorf("%s: reading schemas: %w", filename, err)
	}

	var out []*SchemaMeta
	for iter.Next() {
		name := iter.Selector().Unquoted()
		unified := l.schema.
			Unify(iter.Value()).
			Unify(l.ctx.Encode(map[string]string{"name": name}))
		if err := unified.Validate(cue.Concrete(true)); err != nil {
			return nil, fmt.Errorf("%s: schema %s: %w", filename, name, err)
		}
		var doc SchemaDoc
		if err := unified.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: decoding %s: %w", filename, name, err)
		}
		s, err := doc.Schema()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// LoadFS decodes every *.cue file in fsys, in lexical order.
func (l *Loader) LoadFS(fsys fs.FS) ([]*SchemaMeta, error) {
	files, err := fs.Glob(fsys, "*.cue")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var out []*SchemaMeta
	for _, name := range files {
		src, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		schemas, err := l.LoadBytes(name, src)
		if err != nil {
			return nil, err
		}
		out = append(out, schemas...)
	}
	return out, nil
}

// LoadDir decodes every *.cue file in dir.
func (l *Loader) LoadDir(dir string) ([]*SchemaMeta, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("schema dir: %w", err)
	}
	return l.LoadFS(os.DirFS(filepath.Clean(dir)))
}

// Builtin decodes the HR and payroll schemas compiled into the binary.
func (l *Loader) Builtin() ([]*SchemaMeta, error) {
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		return nil, err
	}
	return l.LoadFS(sub)
}

// LoadAll returns the builtin schemas followed by those in dir. A schema in
// dir replaces a builtin one of the same name. An empty dir loads builtins
// only.
func (l *Loader) LoadAll(dir string) ([]*SchemaMeta, error) {
	schemas, err := l.Builtin()
	if err != nil {
		return nil, fmt.Errorf("builtin schemas: %w", err)
	}
	if dir == "" {
		return schemas, nil
	}
	extra, err := l.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int, len(schemas))
	for i, s := range schemas {
		byName[s.Name] = i
	}
	for _, s := range extra {
		if i, ok := byName[s.Name]; ok {
			schemas[i] = s
			continue
		}
		byName[s.Name] = len(schemas)
		schemas = append(schemas, s)
	}
	return schemas, nil
}
