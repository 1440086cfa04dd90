// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package encode

import (
	"bytes"
	"encoding/json"
	"sort"

	"gopkg.in/yaml.v3"
)

// Render receives the encoded model structure.
type Render interface {
	ObjectStart(name string, attributes map[string]string)
	ObjectEnd()

	// Property renders a primitive value. The value is either a string,
	// a []string or a map[string]string.
	Property(name string, value any)
}

// Renderer is a [Render] which produces a serialized document.
type Renderer interface {
	Render

	ContentType() string
	Bytes() ([]byte, error)
}

type node struct {
	name     string
	attrs    map[string]string
	object   bool
	value    any
	children []*node
}

type tree struct {
	root  *node
	stack []*node
}

func (t *tree) ObjectStart(name string, attributes map[string]string) {
	n := &node{name: name, attrs: attributes, object: true}
	if len(t.stack) == 0 {
		t.root = n
	} else {
		top := t.stack[len(t.stack)-1]
		top.children = append(top.children, n)
	}
	t.stack = append(t.stack, n)
}

func (t *tree) ObjectEnd() {
	if len(t.stack) == 0 {
		return
	}
	t.stack = t.stack[:len(t.stack)-1]
}

func (t *tree) Property(name string, value any) {
	if len(t.stack) == 0 {
		return
	}
	top := t.stack[len(t.stack)-1]
	top.children = append(top.children, &node{name: name, value: value})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// JsonRender renders models as JSON objects. The name of the root
// object is not rendered.
type JsonRender struct {
	tree
}

// NewJsonRender returns an empty JsonRender.
func NewJsonRender() *JsonRender {
	return &JsonRender{}
}

// ContentType implements the [Renderer] interface.
func (*JsonRender) ContentType() string {
	return "application/json"
}

// Bytes implements the [Renderer] interface.
func (r *JsonRender) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if r.root == nil {
		buf.WriteString("{}")
		return buf.Bytes(), nil
	}
	err := writeJsonObject(&buf, r.root)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJsonObject(buf *bytes.Buffer, n *node) error {
	buf.WriteByte('{')
	first := true
	member := func(name string) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		return writeJson(buf, name)
	}
	for _, k := range sortedKeys(n.attrs) {
		if err := member(k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeJson(buf, n.attrs[k]); err != nil {
			return err
		}
	}
	for _, c := range n.children {
		if err := member(c.name); err != nil {
			return err
		}
		buf.WriteByte(':')
		var err error
		if c.object {
			err = writeJsonObject(buf, c)
		} else {
			err = writeJsonValue(buf, c.value)
		}
		if err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeJsonValue(buf *bytes.Buffer, v any) error {
	m, ok := v.(map[string]string)
	if !ok {
		return writeJson(buf, v)
	}
	buf.WriteByte('{')
	for i, k := range sortedKeys(m) {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJson(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeJson(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeJson(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// YamlRender renders models as YAML mappings. The name of the root
// object is not rendered.
type YamlRender struct {
	tree
}

// NewYamlRender returns an empty YamlRender.
func NewYamlRender() *YamlRender {
	return &YamlRender{}
}

// ContentType implements the [Renderer] interface.
func (*YamlRender) ContentType() string {
	return "application/yaml"
}

// Bytes implements the [Renderer] interface.
func (r *YamlRender) Bytes() ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	if r.root != nil {
		doc = yamlObject(r.root)
	}
	return yaml.Marshal(doc)
}

func yamlScalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func yamlObject(n *node) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range sortedKeys(n.attrs) {
		m.Content = append(m.Content, yamlScalar(k), yamlScalar(n.attrs[k]))
	}
	for _, c := range n.children {
		var v *yaml.Node
		if c.object {
			v = yamlObject(c)
		} else {
			v = yamlValue(c.value)
		}
		m.Content = append(m.Content, yamlScalar(c.name), v)
	}
	return m
}

func yamlValue(v any) *yaml.Node {
	switch x := v.(type) {
	case []string:
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, s := range x {
			seq.Content = append(seq.Content, yamlScalar(s))
		}
		return seq
	case map[string]string:
		m := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range sortedKeys(x) {
			m.Content = append(m.Content, yamlScalar(k), yamlScalar(x[k]))
		}
		return m
	case string:
		return yamlScalar(x)
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}
