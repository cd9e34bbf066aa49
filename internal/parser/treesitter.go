package parser

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/codecontext/pkg/types"
)

type capture struct {
	name      string
	nodeType  string
	start     sitter.Point
	end       sitter.Point
	startByte uint32
	endByte   uint32
}

func (p *Parser) parseTreeSitter(path, language string, src []byte) (*types.ParseResult, error) {
	spec := p.registry.Lookup(language)

	sp := sitter.NewParser()
	defer sp.Close()
	sp.SetLanguage(spec.Language)
	tree, err := sp.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	q, err := sitter.NewQuery([]byte(spec.Query), spec.Language)
	if err != nil {
		return nil, fmt.Errorf("compile query for %s: %w", language, err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	root := tree.RootNode()
	qc.Exec(q, root)

	var captures []capture
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var node *sitter.Node
		var name string
		for _, c := range m.Captures {
			switch q.CaptureNameForId(c.Index) {
			case "chunk":
				node = c.Node
			case "name":
				name = c.Node.Content(src)
			}
		}
		if node == nil {
			continue
		}
		captures = append(captures, capture{
			name:      name,
			nodeType:  node.Type(),
			start:     node.StartPoint(),
			end:       node.EndPoint(),
			startByte: node.StartByte(),
			endByte:   node.EndByte(),
		})
	}

	result := &types.ParseResult{Language: language}
	if root.HasError() {
		line, col := firstErrorPoint(root)
		result.AddError(path, line, col, "syntax error")
	}

	for _, c := range outermost(captures) {
		result.Symbols = append(result.Symbols, types.Symbol{
			Name:      c.name,
			Kind:      kindForNode(c.nodeType),
			Signature: firstLine(src[c.startByte:c.endByte]),
			Start:     types.Position{Line: int(c.start.Row) + 1, Column: int(c.start.Column) + 1},
			End:       types.Position{Line: int(c.end.Row) + 1, Column: int(c.end.Column) + 1},
		})
	}
	return result, nil
}

// outermost drops captures fully contained in an earlier, larger capture
func outermost(caps []capture) []capture {
	if len(caps) <= 1 {
		return caps
	}
	sort.Slice(caps, func(i, j int) bool {
		if caps[i].startByte != caps[j].startByte {
			return caps[i].startByte < caps[j].startByte
		}
		return caps[i].endByte-caps[i].startByte > caps[j].endByte-caps[j].startByte
	})

	result := make([]capture, 0, len(caps))
	var lastEnd uint32
	for i, c := range caps {
		if i > 0 && c.startByte < lastEnd {
			continue
		}
		result = append(result, c)
		lastEnd = c.endByte
	}
	return result
}

func kindForNode(nodeType string) types.SymbolKind {
	switch nodeType {
	case "function_definition", "function_declaration", "function_item", "lexical_declaration":
		return types.KindFunction
	case "method_definition", "method_declaration":
		return types.KindMethod
	case "interface_declaration", "trait_item":
		return types.KindInterface
	case "type_alias_declaration":
		return types.KindType
	case "struct_item":
		return types.KindStruct
	}
	return types.KindClass
}

func firstErrorPoint(n *sitter.Node) (int, int) {
	if n.Type() == "ERROR" || n.IsMissing() {
		p := n.StartPoint()
		return int(p.Row) + 1, int(p.Column) + 1
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child != nil && child.HasError() {
			return firstErrorPoint(child)
		}
	}
	p := n.StartPoint()
	return int(p.Row) + 1, int(p.Column) + 1
}

func firstLine(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
