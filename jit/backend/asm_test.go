package backend_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/corejit/jit/backend"
	"github.com/mna/corejit/jit/ir"
)

func TestParseAsm(t *testing.T) {
	cases := []struct {
		desc string
		in   string
		err  string // error "contains" this string; no error expected if empty
	}{
		{"empty", ``, "expected 'function:"},
		{"wrong header keyword", `block:`, "expected 'function:"},
		{"unknown return kind", `function: fn bogus -`, "unknown return kind"},
		{"unknown param kind", `function: fn i32 bogus`, "unknown param kind"},
		{"no blocks", `function: fn void -`, "has no blocks"},
		{"unknown opcode", `
			function: fn void -
			block:
				foobar
		`, "unknown or unsupported opcode"},
		{"missing operand", `
			function: fn void -
			block:
				v0 = const i32 1
				add i32 v0 vnope
		`, "undefined value"},
		{"branch to missing block", `
			function: fn void -
			block:
				br b1
		`, "out of range"},

		{"minimal", `
			function: fn void -
			block:
				return_void
		`, ""},

		{"arithmetic and branch", `
			function: fn i32 i32,i32
			block:
				v0 = incoming_reg i32 0
				v1 = incoming_reg i32 1
				v2 = add i32 v0 v1
				v3 = const i32 0
				v4 = cmp_gt v2 v3
				br_eq b2 v4 v3
			block:
				br b2
			block:
				return v2
		`, ""},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			fn, err := backend.ParseAsm([]byte(c.in))
			if c.err == "" {
				require.NoError(t, err)
				require.NotNil(t, fn)
				return
			}
			require.ErrorContains(t, err, c.err)
		})
	}
}

func TestAsmRoundtrip(t *testing.T) {
	src := `
		function: fn i32 i32,i32
		block:
			v0 = incoming_reg i32 0
			v1 = incoming_reg i32 1
			v2 = add i32 v0 v1
			br b1
		block:
			return v2
	`

	fn, err := backend.ParseAsm([]byte(src))
	require.NoError(t, err)
	require.Equal(t, 2, fn.NumBlocks())

	out, err := backend.WriteAsm(fn)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	fn2, err := backend.ParseAsm(out)
	require.NoError(t, err)
	require.Equal(t, fn.NumBlocks(), fn2.NumBlocks())
	require.Equal(t, fn.NumValues(), fn2.NumValues())
	require.Equal(t, fn.NumInstructions(), fn2.NumInstructions())
}

func TestAsmConstantFolding(t *testing.T) {
	src := `
		function: fn i32 -
		block:
			v0 = const i32 2
			v1 = const i32 3
			v2 = add i32 v0 v1
			return v2
	`
	fn, err := backend.ParseAsm([]byte(src))
	require.NoError(t, err)

	var found bool
	fn.EachValue(func(id ir.ValueID, v *ir.Value) {
		if v.IsConstant && v.IntValue == 5 {
			found = true
		}
	})
	require.True(t, found, "constant folding should have produced a value of 5")
}
