package types

import (
	"errors"
)

// SymbolKind represents the kind of top-level construct
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindClass     SymbolKind = "class"
)

// Position represents a location in source code
type Position struct {
	Line   int
	Column int
}

// Symbol represents a top-level construct extracted from a syntax tree
type Symbol struct {
	Name      string
	Kind      SymbolKind
	Signature string // Function signature or type definition
	Receiver  string // For methods: receiver type name

	Start Position
	End   Position
}

// ValidateKind checks if the symbol kind is valid
func (s *Symbol) ValidateKind() error {
	switch s.Kind {
	case KindFunction, KindMethod, KindStruct, KindInterface, KindType, KindClass:
		return nil
	default:
		return errors.New("invalid symbol kind")
	}
}

// Validate performs comprehensive validation of the symbol
func (s *Symbol) Validate() error {
	if err := s.ValidateKind(); err != nil {
		return err
	}

	if s.Start.Line <= 0 || s.End.Line <= 0 {
		return errors.New("invalid position: line numbers must be positive")
	}

	if s.Start.Line > s.End.Line {
		return errors.New("invalid position: start line must be before or equal to end line")
	}

	return nil
}

// ChunkType maps a symbol kind to the chunk type it produces
func (s *Symbol) ChunkType() ChunkType {
	switch s.Kind {
	case KindFunction:
		return ChunkFunction
	case KindMethod:
		return ChunkMethod
	default:
		return ChunkClass
	}
}
