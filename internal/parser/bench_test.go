package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codecontext/pkg/types"
)

func readFixture(tb testing.TB, name string) []byte {
	tb.Helper()
	src, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(tb, err)
	return src
}

func TestParseFixture(t *testing.T) {
	result, err := New().Parse("orders.go", "go", readFixture(t, "orders.go"))
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "sample", result.PackageName)

	syms := symbolsByName(result)
	assert.Len(t, syms, 10)
	assert.Equal(t, types.KindStruct, syms["OrderAggregate"].Kind)
	assert.Equal(t, types.KindInterface, syms["OrderRepository"].Kind)
	assert.Equal(t, types.KindInterface, syms["Notifier"].Kind)
	assert.Equal(t, types.KindFunction, syms["NewOrderService"].Kind)

	method := syms["OrderService.PlaceOrder"]
	assert.Equal(t, types.KindMethod, method.Kind)
	assert.Equal(t, "OrderService", method.Receiver)
	assert.Equal(t, 56, method.Start.Line)
}

func BenchmarkParseGo(b *testing.B) {
	p := New()
	src := readFixture(b, "orders.go")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result, err := p.Parse("orders.go", "go", src)
		if err != nil {
			b.Fatal(err)
		}
		if len(result.Symbols) == 0 {
			b.Fatal("no symbols")
		}
	}
}
