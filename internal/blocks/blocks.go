// Package blocks renders block-delimited HTML content.
//
// Blocks are delimited by HTML comments:
//
//	<!-- wp:namespace/name {"attr":1} -->inner HTML<!-- /wp:namespace/name -->
//	<!-- wp:namespace/name {"attr":1} /-->
//
// Blocks without a namespace belong to "core". Rendering strips the
// delimiters and runs the caller's filters over every block, innermost
// first. Parsing is lenient: blocks still open at the end of the content
// are closed there, and closers matching no open block are dropped. Filters are passed per call, so concurrent renders never see each
// other's filters.
package blocks

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
)

// Block is a parsed block. Name is always namespaced ("core/paragraph").
type Block struct {
	Name  string
	Attrs map[string]any
	Inner []Node
}

// Node is either text or a block.
type Node struct {
	Text  string
	Block *Block
}

// Filter rewrites the rendered output of a block.
type Filter func(rendered string, b *Block) string

// delimiter matches block comments; the groups are closer, namespace, name,
// attributes and void marker.
var delimiter = regexp.MustCompile(`(?s)<!--\s+(/)?wp:([a-z][a-z0-9_-]*/)?([a-z][a-z0-9_-]*)\s+(\{.*?\}\s+)?(/)?-->`)

// Parse splits content into text and block nodes. Only invalid attribute
// JSON is an error.
func Parse(content string) ([]Node, error) {
	root := &Block{}
	stack := []*Block{root}
	pos := 0

	for _, m := range delimiter.FindAllStringSubmatchIndex(content, -1) {
		top := stack[len(stack)-1]
		if m[0] > pos {
			top.Inner = append(top.Inner, Node{Text: content[pos:m[0]]})
		}
		pos = m[1]

		closer := m[2] >= 0
		void := m[10] >= 0
		name := qualify(submatch(content, m, 2), submatch(content, m, 3))

		if closer {
			// Closing an outer block closes everything opened inside it.
			if i := openIndex(stack, name); i > 0 {
				stack = stack[:i]
			}
			continue
		}

		b := &Block{Name: name}
		if raw := strings.TrimSpace(submatch(content, m, 4)); raw != "" {
			if err := json.Unmarshal([]byte(raw), &b.Attrs); err != nil {
				return nil, fmt.Errorf("blocks: attributes of %s: %w", name, err)
			}
		}
		top.Inner = append(top.Inner, Node{Block: b})
		if !void {
			stack = append(stack, b)
		}
	}

	// Trailing text belongs to the innermost block still open.
	if pos < len(content) {
		top := stack[len(stack)-1]
		top.Inner = append(top.Inner, Node{Text: content[pos:]})
	}
	return root.Inner, nil
}

// openIndex returns the stack position of the innermost open block called
// name, or 0 when none is open.
func openIndex(stack []*Block, name string) int {
	for i := len(stack) - 1; i > 0; i-- {
		if stack[i].Name == name {
			return i
		}
	}
	return 0
}

// Render parses content and renders it through filters.
func Render(content string, filters ...Filter) (string, error) {
	nodes, err := Parse(content)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	renderNodes(&b, nodes, filters)
	return b.String(), nil
}

func renderNodes(b *strings.Builder, nodes []Node, filters []Filter) {
	for _, n := range nodes {
		if n.Block == nil {
			b.WriteString(n.Text)
			continue
		}
		var inner strings.Builder
		renderNodes(&inner, n.Block.Inner, filters)
		out := inner.String()
		for _, f := range filters {
			out = f(out, n.Block)
		}
		b.WriteString(out)
	}
}

// SuppressNamespace drops the output of every block in namespace ns.
func SuppressNamespace(ns string) Filter {
	prefix := strings.TrimSuffix(ns, "/") + "/"
	return func(rendered string, b *Block) string {
		if strings.HasPrefix(b.Name, prefix) {
			return ""
		}
		return rendered
	}
}

func qualify(ns, name string) string {
	if ns == "" {
		return "core/" + name
	}
	return ns + name
}

func submatch(s string, m []int, group int) string {
	if m[2*group] < 0 {
		return ""
	}
	return s[m[2*group]:m[2*group+1]]
}
