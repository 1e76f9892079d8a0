// Package rulefile loads rule-file documents (spec §6.3): a YAML document
// with a single top-level `db_objects` list, validated against an embedded
// JSON Schema and turned into []*rules.Rule, each carrying the source
// position of the YAML mapping it was parsed from.
package rulefile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/palantir/stacktrace"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/pgseldump/pgseldump/internal/log"
	"github.com/pgseldump/pgseldump/internal/rules"
	"github.com/pgseldump/pgseldump/internal/schema"
)

//go:embed schema.json
var schemaJSON []byte

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("rulefile: invalid embedded schema: %s", err))
	}
	if err := c.AddResource("pgseldump-rule-document.json", doc); err != nil {
		panic(fmt.Sprintf("rulefile: failed to register embedded schema: %s", err))
	}
	sch, err := c.Compile("pgseldump-rule-document.json")
	if err != nil {
		panic(fmt.Sprintf("rulefile: failed to compile embedded schema: %s", err))
	}
	return sch
}

var kindNames = map[string]schema.Kind{
	"table":             schema.KindTable,
	"partitioned_table": schema.KindPartitionedTable,
	"sequence":          schema.KindSequence,
	"materialized_view": schema.KindMaterializedView,
}

// knownKeys is every recognized rule option (spec §6.3); anything else is
// reported with a warning, not an error.
var knownKeys = map[string]bool{
	"name": true, "names": true,
	"schema": true, "schemas": true,
	"kind": true, "kinds": true,
	"action": true, "skip": true,
	"no_columns": true, "replace": true, "filter": true,
	"adjust_score": true,
}

// Load parses a rule document from data (the contents of filename, used
// only for diagnostics and per-rule source positions), validates it
// against the embedded schema, and returns its rules.
func Load(filename string, data []byte) ([]*rules.Rule, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, stacktrace.Propagate(err, "%s: failed to parse YAML", filename)
	}
	if len(doc.Content) == 0 {
		return nil, stacktrace.NewError("%s: empty document", filename)
	}
	root := doc.Content[0]

	var generic interface{}
	if err := root.Decode(&generic); err != nil {
		return nil, stacktrace.Propagate(err, "%s: failed to decode YAML", filename)
	}

	if _, ok := generic.(map[string]interface{}); !ok {
		return nil, stacktrace.NewError("%s: config must be an object containing 'db_objects'", filename)
	}

	// Re-encode through JSON so the validator sees canonical JSON types
	// (float64/string/bool/nil/[]any/map[string]any) instead of YAML's
	// native int/map[interface{}]interface{} variants.
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, stacktrace.Propagate(err, "%s: failed to re-encode parsed document", filename)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(asJSON))
	if err != nil {
		return nil, stacktrace.Propagate(err, "%s: failed to decode document for validation", filename)
	}

	if err := compiledSchema.Validate(instance); err != nil {
		return nil, stacktrace.Propagate(err, "%s: invalid rule document", filename)
	}

	objectsNode := mappingValue(root, "db_objects")
	if objectsNode == nil || objectsNode.Kind != yaml.SequenceNode {
		return nil, stacktrace.NewError("%s: db_objects should be a list", filename)
	}

	var out []*rules.Rule
	for _, item := range objectsNode.Content {
		rule, err := ruleFromNode(filename, item)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func ruleFromNode(filename string, node *yaml.Node) (*rules.Rule, error) {
	if node.Kind != yaml.MappingNode {
		return nil, stacktrace.NewError("%s:%d: expected a rule object", filename, node.Line)
	}

	r := &rules.Rule{Action: rules.ActionDump, Filename: filename, Line: node.Line}

	fields := map[string]*yaml.Node{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		fields[node.Content[i].Value] = node.Content[i+1]
	}

	for key := range fields {
		if !knownKeys[key] {
			log.Warn("%s:%d: unrecognized rule option %q, ignoring", filename, node.Line, key)
		}
	}

	if fields["name"] != nil && fields["names"] != nil {
		return nil, stacktrace.NewError("%s:%d: can't specify both 'name' and 'names'", filename, node.Line)
	}
	if fields["schema"] != nil && fields["schemas"] != nil {
		return nil, stacktrace.NewError("%s:%d: can't specify both 'schema' and 'schemas'", filename, node.Line)
	}
	if fields["kind"] != nil && fields["kinds"] != nil {
		return nil, stacktrace.NewError("%s:%d: can't specify both 'kind' and 'kinds'", filename, node.Line)
	}
	if fields["action"] != nil && fields["skip"] != nil {
		return nil, stacktrace.NewError("%s:%d: can't specify both 'action' and 'skip'", filename, node.Line)
	}

	if err := decodeNames(r, fields["name"], fields["names"]); err != nil {
		return nil, stacktrace.Propagate(err, "%s:%d", filename, node.Line)
	}
	if err := decodeSchemas(r, fields["schema"], fields["schemas"]); err != nil {
		return nil, stacktrace.Propagate(err, "%s:%d", filename, node.Line)
	}
	if err := decodeKinds(r, fields["kind"], fields["kinds"]); err != nil {
		return nil, stacktrace.Propagate(err, "%s:%d", filename, node.Line)
	}

	if n := fields["skip"]; n != nil {
		var skip bool
		if err := n.Decode(&skip); err != nil {
			return nil, stacktrace.Propagate(err, "%s:%d: skip", filename, node.Line)
		}
		if skip {
			r.Action = rules.ActionSkip
		}
	}
	if n := fields["action"]; n != nil {
		var action string
		if err := n.Decode(&action); err != nil {
			return nil, stacktrace.Propagate(err, "%s:%d: action", filename, node.Line)
		}
		r.Action = rules.Action(action)
	}

	if n := fields["no_columns"]; n != nil {
		if err := n.Decode(&r.NoColumns); err != nil {
			return nil, stacktrace.Propagate(err, "%s:%d: no_columns", filename, node.Line)
		}
	}
	if n := fields["replace"]; n != nil {
		if err := n.Decode(&r.Replace); err != nil {
			return nil, stacktrace.Propagate(err, "%s:%d: replace", filename, node.Line)
		}
	}
	if n := fields["filter"]; n != nil {
		if err := n.Decode(&r.Filter); err != nil {
			return nil, stacktrace.Propagate(err, "%s:%d: filter", filename, node.Line)
		}
	}
	if n := fields["adjust_score"]; n != nil {
		var score float64
		if err := n.Decode(&score); err != nil {
			return nil, stacktrace.Propagate(err, "%s:%d: adjust_score", filename, node.Line)
		}
		r.AdjustScore = int(score)
	}

	return r, nil
}

func decodeNames(r *rules.Rule, name, names *yaml.Node) error {
	if name != nil {
		var s string
		if err := name.Decode(&s); err != nil {
			return stacktrace.Propagate(err, "name")
		}
		r.Names = map[string]struct{}{s: {}}
		return nil
	}
	if names == nil {
		return nil
	}
	if names.Kind == yaml.ScalarNode {
		var pattern string
		if err := names.Decode(&pattern); err != nil {
			return stacktrace.Propagate(err, "names")
		}
		re, err := compileVerbose(pattern)
		if err != nil {
			return stacktrace.Propagate(err, "names: not a valid regular expression")
		}
		r.NamesRe = re
		return nil
	}
	var list []string
	if err := names.Decode(&list); err != nil {
		return stacktrace.Propagate(err, "names")
	}
	r.Names = toSet(list)
	return nil
}

func decodeSchemas(r *rules.Rule, schemaField, schemasField *yaml.Node) error {
	if schemaField != nil {
		var s string
		if err := schemaField.Decode(&s); err != nil {
			return stacktrace.Propagate(err, "schema")
		}
		r.Schemas = map[string]struct{}{s: {}}
		return nil
	}
	if schemasField == nil {
		return nil
	}
	if schemasField.Kind == yaml.ScalarNode {
		var pattern string
		if err := schemasField.Decode(&pattern); err != nil {
			return stacktrace.Propagate(err, "schemas")
		}
		re, err := compileVerbose(pattern)
		if err != nil {
			return stacktrace.Propagate(err, "schemas: not a valid regular expression")
		}
		r.SchemasRe = re
		return nil
	}
	var list []string
	if err := schemasField.Decode(&list); err != nil {
		return stacktrace.Propagate(err, "schemas")
	}
	r.Schemas = toSet(list)
	return nil
}

func decodeKinds(r *rules.Rule, kindField, kindsField *yaml.Node) error {
	var names []string
	if kindField != nil {
		var s string
		if err := kindField.Decode(&s); err != nil {
			return stacktrace.Propagate(err, "kind")
		}
		names = []string{s}
	} else if kindsField != nil {
		if err := kindsField.Decode(&names); err != nil {
			return stacktrace.Propagate(err, "kinds")
		}
	} else {
		return nil
	}

	kinds := make(map[schema.Kind]struct{}, len(names))
	for _, n := range names {
		k, ok := kindNames[n]
		if !ok {
			return stacktrace.NewError("kind: unknown kind %q", n)
		}
		kinds[k] = struct{}{}
	}
	r.Kinds = kinds
	return nil
}

func toSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, s := range list {
		out[s] = struct{}{}
	}
	return out
}

// compileVerbose compiles pattern in free-spacing ("verbose") mode,
// matching the source's `re.VERBOSE` regexes. Go's RE2 syntax has no `(?x)`
// flag, so a leading `(?x)` is dropped and unescaped whitespace and `#`
// comments outside character classes are stripped before compiling.
func compileVerbose(pattern string) (*regexp.Regexp, error) {
	pattern = strings.TrimPrefix(pattern, "(?x)")
	tokens := regexp.MustCompile(`\\.|\[(?:\\.|[^\]\\])*\]|#[^\n]*|\s+|.`)
	var b strings.Builder
	for _, tok := range tokens.FindAllString(pattern, -1) {
		if tok[0] == '#' || strings.TrimSpace(tok) == "" {
			continue
		}
		b.WriteString(tok)
	}
	return regexp.Compile(b.String())
}
