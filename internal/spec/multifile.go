package spec

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/filestore"
	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/model"
	"go.yaml.in/yaml/v3"
)

// Split selects how a dump is spread over files.
type Split string

const (
	SplitNone   Split = "none"   // one document
	SplitSchema Split = "schema" // one file per schema
	SplitObject Split = "object" // one file per schema object
)

// ParseSplit validates a split mode name.
func ParseSplit(s string) (Split, error) {
	switch Split(s) {
	case "", SplitNone:
		return SplitNone, nil
	case SplitSchema, SplitObject:
		return Split(s), nil
	}
	return "", errs.Newf(errs.ErrKindInvalidInput, "unknown split mode %q", s)
}

// Layout locates a (possibly split) specification inside a store.
type Layout struct {
	Bucket  string
	Dir     string // directory inside the bucket, may be empty
	DBName  string
	Split   Split
	Options Options
}

// RootKey is the object key of the root document.
func (l Layout) RootKey() string {
	return l.key("database." + FileName(l.DBName) + ".yaml")
}

func (l Layout) key(rel string) string {
	if l.Dir == "" {
		return rel
	}
	return path.Join(l.Dir, rel)
}

// FileName escapes every byte outside [a-z0-9_-] as %XX, so names that
// differ only by case or punctuation never share a file.
func FileName(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func schemaFile(schema string) string {
	return "schema." + FileName(schema) + ".yaml"
}

func objectFile(schema string, e Entry) string {
	slug := strings.ReplaceAll(e.Kind.String(), " ", "_")
	return path.Join("schema."+FileName(schema), slug+"."+FileName(strings.TrimPrefix(e.Key, e.Kind.String()+" "))+".yaml")
}

// WriteFiles dumps db according to l and removes files that belonged to the
// previous dump at the same location but are no longer produced. It returns
// the written keys, root first.
func WriteFiles(ctx context.Context, store filestore.Store, db *model.Database, l Layout) ([]string, error) {
	previous, err := listed(ctx, store, l)
	if err != nil {
		return nil, err
	}

	files := map[string]*yaml.Node{}
	root := mapNode()
	for _, e := range TopEntries(db, l.Options) {
		if e.Kind != model.KindSchema || l.Split == SplitNone || l.Split == "" {
			put(root, e.Key, e.Node)
			continue
		}
		rel := schemaFile(e.Name)
		put(root, e.Key, strNode(rel))
		files[rel] = schemaBody(db, e.Name, l)
	}

	written := []string{l.RootKey()}
	if err := putNode(ctx, store, l.Bucket, l.RootKey(), root); err != nil {
		return nil, err
	}
	rels := make([]string, 0, len(files))
	for rel := range files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	for _, rel := range rels {
		if err := putNode(ctx, store, l.Bucket, l.key(rel), files[rel]); err != nil {
			return nil, err
		}
		written = append(written, l.key(rel))
	}
	if l.Split == SplitObject {
		for _, s := range db.Schemas() {
			for _, e := range SchemaEntries(db, s, l.Options) {
				doc := mapNode()
				put(doc, e.Key, e.Node)
				k := l.key(objectFile(s.Name.Name, e))
				if err := putNode(ctx, store, l.Bucket, k, doc); err != nil {
					return nil, err
				}
				written = append(written, k)
			}
		}
	}

	keep := make(map[string]bool, len(written))
	for _, k := range written {
		keep[k] = true
	}
	for _, k := range previous {
		if keep[k] {
			continue
		}
		if err := store.RemoveObject(ctx, l.Bucket, k); err != nil {
			return nil, err
		}
	}
	return written, nil
}

func schemaBody(db *model.Database, name string, l Layout) *yaml.Node {
	s, _ := db.Get(model.SchemaKey(name))
	body := SchemaHeader(db, s.(*model.Schema), l.Options)
	for _, e := range SchemaEntries(db, s.(*model.Schema), l.Options) {
		if l.Split == SplitObject {
			put(body, e.Key, strNode(path.Base(objectFile(name, e))))
			continue
		}
		put(body, e.Key, e.Node)
	}
	return body
}

func putNode(ctx context.Context, store filestore.Store, bucket, key string, n *yaml.Node) error {
	data, err := Encode(n)
	if err != nil {
		return err
	}
	_, err = store.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), filestore.ContentTypeYAML)
	return err
}

// listed returns every file reachable from the current root document, or
// nothing when there is no previous dump.
func listed(ctx context.Context, store filestore.Store, l Layout) ([]string, error) {
	var out []string
	_, err := load(ctx, store, l, func(key string) { out = append(out, key) })
	if errs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadFiles loads a specification written by WriteFiles (or by hand),
// resolving relative file references from the root document.
func ReadFiles(ctx context.Context, store filestore.Store, l Layout, policy *ident.Policy) (*model.Database, error) {
	root, err := load(ctx, store, l, nil)
	if err != nil {
		return nil, err
	}
	return FromNode(root, policy)
}

// load reads the root document and inlines the files it references. seen is
// called with every key read.
func load(ctx context.Context, store filestore.Store, l Layout, seen func(string)) (*yaml.Node, error) {
	fetch := func(key string) (*yaml.Node, error) {
		data, err := filestore.ReadAll(ctx, store, l.Bucket, key)
		if err != nil {
			return nil, err
		}
		if seen != nil {
			seen(key)
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errs.Wrap(errs.ErrKindSpecSyntax, key+": invalid YAML", err)
		}
		if len(doc.Content) == 0 {
			return mapNode(), nil
		}
		return doc.Content[0], nil
	}

	if _, err := store.StatObject(ctx, l.Bucket, l.RootKey()); err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.Keyedf(errs.ErrKindNotFound, l.RootKey(), "no specification in bucket %q", l.Bucket)
		}
		return nil, err
	}
	root, err := fetch(l.RootKey())
	if err != nil {
		return nil, err
	}
	if root.Kind != yaml.MappingNode {
		return nil, syntaxErr(l.RootKey(), "root document must be a mapping")
	}
	baseDir := path.Dir(l.RootKey())
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i].Value, root.Content[i+1]
		if !strings.HasPrefix(k, "schema ") || !isRef(v) {
			continue
		}
		schemaKey, err := resolve(baseDir, v.Value)
		if err != nil {
			return nil, err
		}
		body, err := fetch(schemaKey)
		if err != nil {
			return nil, err
		}
		if err := inlineObjects(body, path.Join(path.Dir(schemaKey), strings.TrimSuffix(path.Base(schemaKey), ".yaml")), fetch); err != nil {
			return nil, err
		}
		root.Content[i+1] = body
	}
	return root, nil
}

// inlineObjects replaces "table t1: table.t1.yaml" entries of a schema body
// with the body stored in the referenced file.
func inlineObjects(body *yaml.Node, dir string, fetch func(string) (*yaml.Node, error)) error {
	if body.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(body.Content); i += 2 {
		k, v := body.Content[i].Value, body.Content[i+1]
		if _, _, ok := parseKey(k); !ok || !isRef(v) {
			continue
		}
		key, err := resolve(dir, v.Value)
		if err != nil {
			return err
		}
		doc, err := fetch(key)
		if err != nil {
			return err
		}
		ps, err := pairs(doc, key)
		if err != nil {
			return err
		}
		if len(ps) != 1 || ps[0].key != k {
			return syntaxErr(key, "file must hold exactly the entry %q", k)
		}
		body.Content[i+1] = ps[0].val
	}
	return nil
}

func isRef(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag != "!!null" && strings.HasSuffix(n.Value, ".yaml")
}

// resolve joins a relative reference to dir, refusing paths that leave the
// dump directory.
func resolve(dir, rel string) (string, error) {
	if path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") || strings.Contains(rel, "/../") {
		return "", syntaxErr(rel, "file reference must be relative and stay inside the dump")
	}
	if dir == "." {
		return path.Clean(rel), nil
	}
	return path.Join(dir, rel), nil
}
