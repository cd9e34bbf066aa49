// Package parser extracts top-level constructs from source files.
//
// Go files are parsed with the standard library (go/parser, go/ast). Python,
// JavaScript, TypeScript, TSX, Java and Rust are parsed with tree-sitter
// grammars registered in a Registry; each grammar has a query that captures
// definitions as @chunk with an optional @name.
//
// # Basic Usage
//
//	p := parser.New()
//	result, err := p.Parse("svc/user.py", "python", src)
//	if err != nil {
//	    return err // binary content or a grammar failure
//	}
//	for _, sym := range result.Symbols {
//	    fmt.Printf("%s %s lines %d-%d\n", sym.Kind, sym.Name, sym.Start.Line, sym.End.Line)
//	}
//
// # Error Handling
//
// Syntax errors do not fail Parse. They are recorded in result.Errors and the
// constructs that could be recovered are still returned. Callers decide
// whether to trust a partial result; the chunker falls back to sliding
// windows when errors are present.
//
// Only outermost constructs are reported. A method inside a class is part of
// the class symbol.
package parser
