package types

import "fmt"

// ParseResult represents the output of parsing a source file
type ParseResult struct {
	Language    string
	PackageName string
	Symbols     []Symbol

	// Errors encountered during parsing
	Errors []ParseError
}

// ParseError represents an error that occurred while parsing a single file.
// It never aborts an indexing run.
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	if pe.Line > 0 {
		return fmt.Sprintf("parse %s:%d:%d: %s", pe.File, pe.Line, pe.Column, pe.Message)
	}
	return fmt.Sprintf("parse %s: %s", pe.File, pe.Message)
}

// HasErrors returns true if any parsing errors occurred
func (pr *ParseResult) HasErrors() bool {
	return len(pr.Errors) > 0
}

// AddError adds a parsing error to the result
func (pr *ParseResult) AddError(file string, line, col int, msg string) {
	pr.Errors = append(pr.Errors, ParseError{
		File:    file,
		Line:    line,
		Column:  col,
		Message: msg,
	})
}

// FirstError returns the first recorded parse error, or nil
func (pr *ParseResult) FirstError() *ParseError {
	if len(pr.Errors) == 0 {
		return nil
	}
	pe := pr.Errors[0]
	return &pe
}
