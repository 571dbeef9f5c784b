package loader

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlFile is the intermediate structure of a YAML definition file.
type yamlFile struct {
	Ruleset    *yamlRuleset    `yaml:"ruleset"`
	Root       string          `yaml:"root"`
	Atoms      []yamlAtom      `yaml:"atoms"`
	Composites []yamlComposite `yaml:"composites"`
}

type yamlRuleset struct {
	Title   string         `yaml:"title"`
	Author  string         `yaml:"author"`
	Version string         `yaml:"version"`
	Root    string         `yaml:"root"`
	Facts   map[string]any `yaml:"facts"`
}

type yamlAtom struct {
	Key     string         `yaml:"key"`
	Kind    string         `yaml:"kind"`
	Fact    string         `yaml:"fact"`
	Op      string         `yaml:"op"`
	Value   *float64       `yaml:"value"` // pointer to tell a missing value from zero
	Payload map[string]any `yaml:"payload"`

	line int
}

// UnmarshalYAML records the line of the atom for error reporting.
func (a *yamlAtom) UnmarshalYAML(node *yaml.Node) error {
	type plain yamlAtom
	if err := node.Decode((*plain)(a)); err != nil {
		return err
	}
	a.line = node.Line
	return nil
}

// yamlOperand is written as {atom: Key} or {composite: Key}.
type yamlOperand struct {
	Atom      string `yaml:"atom"`
	Composite string `yaml:"composite"`
}

type yamlComposite struct {
	Key      string        `yaml:"key"`
	Op       string        `yaml:"op"`
	Operands []yamlOperand `yaml:"operands"`

	line int
}

// UnmarshalYAML records the line of the composite for error reporting.
func (c *yamlComposite) UnmarshalYAML(node *yaml.Node) error {
	type plain yamlComposite
	if err := node.Decode((*plain)(c)); err != nil {
		return err
	}
	c.line = node.Line
	return nil
}

// decodeYAML parses one YAML document and adds its declarations to coll.
func decodeYAML(coll *collector, data []byte) error {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	// An empty document decodes to nothing.
	if len(node.Content) == 0 {
		return nil
	}

	var f yamlFile
	if err := node.Decode(&f); err != nil {
		return err
	}

	at := func(line int) string {
		return fmt.Sprintf("%s:%d", coll.source, line)
	}

	if f.Ruleset != nil {
		coll.addMeta(metaDecl{
			title:   f.Ruleset.Title,
			author:  f.Ruleset.Author,
			version: f.Ruleset.Version,
			root:    f.Ruleset.Root,
			facts:   f.Ruleset.Facts,
			source:  coll.source,
		})
	}
	if f.Root != "" {
		coll.roots = append(coll.roots, rootDecl{key: f.Root, source: coll.source})
	}

	for _, a := range f.Atoms {
		coll.atoms = append(coll.atoms, atomDecl{
			key:     a.Key,
			kind:    a.Kind,
			fact:    a.Fact,
			op:      a.Op,
			right:   a.Value,
			payload: a.Payload,
			source:  at(a.line),
		})
	}

	for _, c := range f.Composites {
		d := compositeDecl{key: c.Key, op: c.Op, source: at(c.line)}
		for _, o := range c.Operands {
			switch {
			case o.Atom != "" && o.Composite != "":
				// Ambiguous; compileRef rejects the empty kind.
				d.operands = append(d.operands, refDecl{key: o.Atom})
			case o.Atom != "":
				d.operands = append(d.operands, refDecl{kind: "atomic", key: o.Atom})
			default:
				d.operands = append(d.operands, refDecl{kind: "composite", key: o.Composite})
			}
		}
		coll.composites = append(coll.composites, d)
	}
	return nil
}
