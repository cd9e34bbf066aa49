package parser

import (
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

const (
	pythonQuery = `
		(function_definition name: (identifier) @name) @chunk
		(class_definition name: (identifier) @name) @chunk
		(decorated_definition definition: (function_definition name: (identifier) @name)) @chunk
		(decorated_definition definition: (class_definition name: (identifier) @name)) @chunk
	`

	javascriptQuery = `
		(function_declaration name: (identifier) @name) @chunk
		(class_declaration name: (identifier) @name) @chunk
		(method_definition name: (property_identifier) @name) @chunk
		(export_statement (function_declaration name: (identifier) @name)) @chunk
		(export_statement (class_declaration name: (identifier) @name)) @chunk
		(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @chunk
	`

	typescriptQuery = `
		(function_declaration name: (identifier) @name) @chunk
		(class_declaration name: (type_identifier) @name) @chunk
		(method_definition name: (property_identifier) @name) @chunk
		(export_statement (function_declaration name: (identifier) @name)) @chunk
		(export_statement (class_declaration name: (type_identifier) @name)) @chunk
		(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @chunk
		(interface_declaration name: (type_identifier) @name) @chunk
		(type_alias_declaration name: (type_identifier) @name) @chunk
	`

	javaQuery = `
		(class_declaration name: (identifier) @name) @chunk
		(interface_declaration name: (identifier) @name) @chunk
		(enum_declaration name: (identifier) @name) @chunk
		(method_declaration name: (identifier) @name) @chunk
	`

	rustQuery = `
		(function_item name: (identifier) @name) @chunk
		(struct_item name: (type_identifier) @name) @chunk
		(enum_item name: (type_identifier) @name) @chunk
		(trait_item name: (type_identifier) @name) @chunk
		(impl_item type: (type_identifier) @name) @chunk
	`
)

// RegisterDefaults registers every built-in tree-sitter grammar
func RegisterDefaults(r *Registry) {
	r.Register("python", &LanguageSpec{Language: python.GetLanguage(), Query: pythonQuery})
	r.Register("javascript", &LanguageSpec{Language: javascript.GetLanguage(), Query: javascriptQuery})
	r.Register("typescript", &LanguageSpec{Language: typescript.GetLanguage(), Query: typescriptQuery})
	r.Register("tsx", &LanguageSpec{Language: tsx.GetLanguage(), Query: typescriptQuery})
	r.Register("java", &LanguageSpec{Language: java.GetLanguage(), Query: javaQuery})
	r.Register("rust", &LanguageSpec{Language: rust.GetLanguage(), Query: rustQuery})
}
