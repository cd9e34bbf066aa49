package parser

import (
	"errors"
	"fmt"
	"go/ast"
	goparser "go/parser"
	"go/scanner"
	"go/token"
	"strings"

	"github.com/dshills/codecontext/pkg/types"
)

// parseGo extracts top-level functions, methods and type declarations.
// Syntax errors are non-fatal; go/parser returns a partial AST.
func parseGo(path string, src []byte) *types.ParseResult {
	result := &types.ParseResult{Language: "go"}
	fset := token.NewFileSet()

	file, err := goparser.ParseFile(fset, path, src, goparser.ParseComments)
	if err != nil {
		var list scanner.ErrorList
		if errors.As(err, &list) && list.Len() > 0 {
			for _, e := range list {
				result.AddError(path, e.Pos.Line, e.Pos.Column, e.Msg)
			}
		} else {
			result.AddError(path, 0, 0, fmt.Sprintf("syntax error: %v", err))
		}
	}
	if file == nil {
		return result
	}
	if file.Name != nil {
		result.PackageName = file.Name.Name
	}

	e := &symbolExtractor{fset: fset}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			e.extractFunction(d)
		case *ast.GenDecl:
			if d.Tok == token.TYPE {
				e.extractTypeDecl(d)
			}
		}
	}
	result.Symbols = e.symbols
	return result
}

// symbolExtractor collects symbols for top-level declarations
type symbolExtractor struct {
	fset    *token.FileSet
	symbols []types.Symbol
}

func (e *symbolExtractor) extractFunction(funcDecl *ast.FuncDecl) {
	if funcDecl.Name == nil {
		return
	}
	sym := types.Symbol{
		Name:  funcDecl.Name.Name,
		Start: e.startWithDoc(funcDecl.Pos(), funcDecl.Doc),
		End:   e.position(funcDecl.End()),
	}

	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		sym.Kind = types.KindMethod
		sym.Receiver = receiverType(funcDecl.Recv.List[0].Type)
		if sym.Receiver != "" {
			sym.Name = sym.Receiver + "." + sym.Name
		}
	} else {
		sym.Kind = types.KindFunction
	}
	sym.Signature = functionSignature(funcDecl)

	e.symbols = append(e.symbols, sym)
}

// extractTypeDecl emits one symbol per type declaration. Grouped
// declarations (type ( ... )) emit one symbol per spec.
func (e *symbolExtractor) extractTypeDecl(genDecl *ast.GenDecl) {
	grouped := genDecl.Lparen.IsValid()
	for _, spec := range genDecl.Specs {
		typeSpec, ok := spec.(*ast.TypeSpec)
		if !ok || typeSpec.Name == nil {
			continue
		}

		sym := types.Symbol{Name: typeSpec.Name.Name}
		if grouped {
			doc := typeSpec.Doc
			sym.Start = e.startWithDoc(typeSpec.Pos(), doc)
			sym.End = e.position(typeSpec.End())
		} else {
			sym.Start = e.startWithDoc(genDecl.Pos(), genDecl.Doc)
			sym.End = e.position(genDecl.End())
		}

		switch t := typeSpec.Type.(type) {
		case *ast.StructType:
			sym.Kind = types.KindStruct
			fields := 0
			if t.Fields != nil {
				fields = t.Fields.NumFields()
			}
			sym.Signature = fmt.Sprintf("type %s struct { ... } // %d fields", typeSpec.Name.Name, fields)
		case *ast.InterfaceType:
			sym.Kind = types.KindInterface
			methods := 0
			if t.Methods != nil {
				methods = t.Methods.NumFields()
			}
			sym.Signature = fmt.Sprintf("type %s interface { ... } // %d methods", typeSpec.Name.Name, methods)
		default:
			sym.Kind = types.KindType
			sym.Signature = fmt.Sprintf("type %s %s", typeSpec.Name.Name, exprToString(typeSpec.Type))
		}

		e.symbols = append(e.symbols, sym)
	}
}

// startWithDoc moves the start position up to the doc comment when present
func (e *symbolExtractor) startWithDoc(pos token.Pos, doc *ast.CommentGroup) types.Position {
	if doc != nil && doc.Pos().IsValid() && doc.Pos() < pos {
		return e.position(doc.Pos())
	}
	return e.position(pos)
}

func (e *symbolExtractor) position(pos token.Pos) types.Position {
	p := e.fset.Position(pos)
	return types.Position{Line: p.Line, Column: p.Column}
}

func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	}
	return ""
}

func functionSignature(funcDecl *ast.FuncDecl) string {
	var sig strings.Builder
	sig.WriteString("func ")

	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(exprToString(funcDecl.Recv.List[0].Type))
		sig.WriteString(") ")
	}
	sig.WriteString(funcDecl.Name.Name)

	sig.WriteString("(")
	if funcDecl.Type.Params != nil {
		sig.WriteString(fieldListToString(funcDecl.Type.Params))
	}
	sig.WriteString(")")

	if funcDecl.Type.Results != nil {
		results := fieldListToString(funcDecl.Type.Results)
		if results != "" {
			if funcDecl.Type.Results.NumFields() > 1 || len(funcDecl.Type.Results.List[0].Names) > 0 {
				sig.WriteString(" (")
				sig.WriteString(results)
				sig.WriteString(")")
			} else {
				sig.WriteString(" ")
				sig.WriteString(results)
			}
		}
	}
	return sig.String()
}

func fieldListToString(fieldList *ast.FieldList) string {
	if fieldList == nil || len(fieldList.List) == 0 {
		return ""
	}
	var parts []string
	for _, field := range fieldList.List {
		typeStr := exprToString(field.Type)
		if len(field.Names) > 0 {
			for _, name := range field.Names {
				parts = append(parts, name.Name+" "+typeStr)
			}
		} else {
			parts = append(parts, typeStr)
		}
	}
	return strings.Join(parts, ", ")
}

func exprToString(expr ast.Expr) string {
	if expr == nil {
		return ""
	}
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprToString(t.X)
	case *ast.ArrayType:
		return "[]" + exprToString(t.Elt)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", exprToString(t.Key), exprToString(t.Value))
	case *ast.ChanType:
		return "chan " + exprToString(t.Value)
	case *ast.FuncType:
		return "func(...)"
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.StructType:
		return "struct{...}"
	case *ast.SelectorExpr:
		return exprToString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + exprToString(t.Elt)
	case *ast.IndexExpr:
		return exprToString(t.X) + "[" + exprToString(t.Index) + "]"
	case *ast.IndexListExpr:
		args := make([]string, 0, len(t.Indices))
		for _, idx := range t.Indices {
			args = append(args, exprToString(idx))
		}
		return exprToString(t.X) + "[" + strings.Join(args, ", ") + "]"
	default:
		return "..."
	}
}
