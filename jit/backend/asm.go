package backend

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/mna/corejit/jit/builder"
	"github.com/mna/corejit/jit/ir"
	"github.com/mna/corejit/jit/types"
)

// This file implements a human-readable/writable form of an ir.Function,
// a textual IR assembler/disassembler supplementing the teacher corpus:
// the same test-without-a-frontend capability
// lang/compiler/asm.go gives the teacher's own bytecode, scaled down to
// this IR's three-address shape (Dest/Value1/Value2/Aux, explicit blocks)
// instead of a stack-based encoding.
//
// 	function: NAME RETKIND PARAMKIND,PARAMKIND,...    # RETKIND void for none, PARAMKIND list "-" for none
// 	block:
// 		v0 = incoming_reg i32 0
// 		v1 = const i32 4
// 		v2 = add i32 v0 v1
// 		return v2
//
// Forward/backward branch targets name a block by its declaration order
// ("b0", "b1", ...), matching the order ParseAsm calls Builder.NewLabel.
// A handful of opcodes that need more than two value operands or a
// function reference (CALL family, LOAD_ELEMENT/STORE_ELEMENT,
// JUMPTABLE) are out of scope for this textual form; every other opcode
// round-trips. A block's terminator, if any, must be its last line: a
// conditional branch is itself a terminator (implicit fallthrough to the
// next declared block), so it cannot be followed by another instruction
// in the same "block:" section.

var kindNames = map[string]*types.Type{
	"i8": types.TypeI8, "u8": types.TypeU8,
	"i16": types.TypeI16, "u16": types.TypeU16,
	"i32": types.TypeI32, "u32": types.TypeU32,
	"i64": types.TypeI64, "u64": types.TypeU64,
	"f32": types.TypeF32, "f64": types.TypeF64,
	"nfloat": types.TypeNFloat, "ptr": types.TypePtr, "void": types.TypeVoid,
}

// opArity classifies how ParseAsm/WriteAsm shape one opcode's operand line.
type opArity struct {
	destKind bool // a "vNAME = OP KIND ..." dest value is declared, typed by the KIND token
	destI32  bool // dest is declared but implicitly i32 (comparisons), no KIND token
	values   int  // number of value-name operands (after any KIND/block token)
	isBranch bool // first operand is a block reference, not a value
	aux      bool // one trailing integer literal goes to Instruction.Aux
}

var arities = map[ir.Opcode]opArity{
	ir.NOP:         {},
	ir.ADD:         {destKind: true, values: 2},
	ir.SUB:         {destKind: true, values: 2},
	ir.MUL:         {destKind: true, values: 2},
	ir.DIV:         {destKind: true, values: 2},
	ir.REM:         {destKind: true, values: 2},
	ir.AND:         {destKind: true, values: 2},
	ir.OR:          {destKind: true, values: 2},
	ir.XOR:         {destKind: true, values: 2},
	ir.NOT:         {destKind: true, values: 1},
	ir.NEG:         {destKind: true, values: 1},
	ir.SHL:         {destKind: true, values: 2},
	ir.SHR:         {destKind: true, values: 2},
	ir.ADD_OVF:     {destKind: true, values: 2},
	ir.SUB_OVF:     {destKind: true, values: 2},
	ir.MUL_OVF:     {destKind: true, values: 2},
	ir.CONV:        {destKind: true, values: 1},
	ir.CONV_OVF:    {destKind: true, values: 1},
	ir.CMP_LT:      {destI32: true, values: 2},
	ir.CMP_LE:      {destI32: true, values: 2},
	ir.CMP_GT:      {destI32: true, values: 2},
	ir.CMP_GE:      {destI32: true, values: 2},
	ir.CMP_EQ:      {destI32: true, values: 2},
	ir.CMP_NE:      {destI32: true, values: 2},
	ir.BR:          {isBranch: true, values: 0},
	ir.BR_LT:       {isBranch: true, values: 2},
	ir.BR_LE:       {isBranch: true, values: 2},
	ir.BR_GT:       {isBranch: true, values: 2},
	ir.BR_GE:       {isBranch: true, values: 2},
	ir.BR_EQ:       {isBranch: true, values: 2},
	ir.BR_NE:       {isBranch: true, values: 2},
	ir.RETURN:      {values: 1},
	ir.RETURN_VOID: {values: 0},
	ir.THROW:       {values: 1},
	ir.LOAD_RELATIVE:  {destKind: true, values: 1, aux: true},
	ir.STORE_RELATIVE: {values: 2, aux: true},
	ir.ADDRESS_OF:     {destKind: true, values: 1},
	ir.PUSH_ARG:       {values: 1},
	ir.POP_STACK:      {values: 0, aux: true},
	ir.OUTGOING_REG:   {values: 1, aux: true},
	ir.INCOMING_REG:   {destKind: true, values: 0, aux: true},
	ir.RETURN_REG:     {values: 0, aux: true},
	ir.MARK_OFFSET:    {values: 0, aux: true},
}

var reverseOpcodeByName map[string]ir.Opcode

func init() {
	reverseOpcodeByName = make(map[string]ir.Opcode, len(arities))
	for op := range arities {
		reverseOpcodeByName[op.String()] = op
	}
}

// ParseAsm builds an *ir.Function from its textual assembly form.
func ParseAsm(src []byte) (*ir.Function, error) {
	p := &asmParser{s: bufio.NewScanner(bytes.NewReader(src)), names: map[string]ir.ValueID{}}

	fields := p.next()
	fn, b, err := p.header(fields)
	if err != nil {
		return nil, err
	}

	// Pre-scan for "block:" lines so forward branches can resolve a target
	// before that block's instructions are parsed, mirroring how a real
	// assembler two-passes label resolution.
	var blockLabels []ir.LabelID
	fields = p.next()
	firstBlockLine := fields

	pre := bufio.NewScanner(bytes.NewReader(src))
	for pre.Scan() {
		line := strings.TrimSpace(pre.Text())
		if line == "block:" {
			_, label := b.NewLabel()
			blockLabels = append(blockLabels, label)
		}
	}
	if len(blockLabels) == 0 {
		return nil, fmt.Errorf("asm: function %s has no blocks", fn.Signature)
	}

	blockIdx := -1
	for fields = firstBlockLine; len(fields) > 0; fields = p.next() {
		if p.err != nil {
			return nil, p.err
		}
		if fields[0] == "block:" {
			blockIdx++
			blockID, _ := fn.BlockByLabel(blockLabels[blockIdx])
			b.SwitchToBlock(blockID)
			continue
		}
		if blockIdx < 0 {
			return nil, fmt.Errorf("asm: instruction before first block: line %q", strings.Join(fields, " "))
		}
		if err := p.instruction(fn, b, blockLabels, fields); err != nil {
			return nil, err
		}
	}
	if p.err != nil {
		return nil, p.err
	}

	b.Finish()
	return fn, nil
}

type asmParser struct {
	s     *bufio.Scanner
	names map[string]ir.ValueID
	err   error
}

func (p *asmParser) next() []string {
	if p.err != nil {
		return nil
	}
	for p.s.Scan() {
		line := strings.TrimSpace(p.s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return strings.Fields(line)
	}
	p.err = p.s.Err()
	return nil
}

func (p *asmParser) header(fields []string) (*ir.Function, *builder.Builder, error) {
	if len(fields) < 3 || fields[0] != "function:" {
		return nil, nil, fmt.Errorf("asm: expected 'function: NAME RETKIND PARAMS' header")
	}
	ret, ok := kindNames[fields[2]]
	if !ok {
		return nil, nil, fmt.Errorf("asm: unknown return kind %q", fields[2])
	}
	var params []*types.Type
	if len(fields) > 3 && fields[3] != "-" {
		for _, tok := range strings.Split(fields[3], ",") {
			pt, ok := kindNames[tok]
			if !ok {
				return nil, nil, fmt.Errorf("asm: unknown param kind %q", tok)
			}
			params = append(params, pt)
		}
	}
	sig := types.NewSignature(ret, params, types.ABICdecl)
	fn := ir.NewFunction(sig)
	return fn, builder.New(fn), nil
}

func (p *asmParser) instruction(fn *ir.Function, b *builder.Builder, blockLabels []ir.LabelID, fields []string) error {
	var destName string
	rest := fields
	if len(fields) >= 2 && fields[1] == "=" {
		destName, rest = fields[0], fields[2:]
	}

	if len(rest) == 0 {
		return fmt.Errorf("asm: empty instruction line")
	}
	if rest[0] == "const" {
		if destName == "" {
			return fmt.Errorf("asm: const: must declare a destination value")
		}
		if len(rest) != 3 {
			return fmt.Errorf("asm: const: expected 'const KIND VALUE'")
		}
		kt, ok := kindNames[rest[1]]
		if !ok {
			return fmt.Errorf("asm: const: unknown kind %q", rest[1])
		}
		var id ir.ValueID
		if kt.Kind.IsFloat() {
			fv, err := strconv.ParseFloat(rest[2], 64)
			if err != nil {
				return fmt.Errorf("asm: const: invalid float %q: %w", rest[2], err)
			}
			id = b.ConstantFloat(kt, fv)
		} else {
			iv, err := strconv.ParseInt(rest[2], 10, 64)
			if err != nil {
				return fmt.Errorf("asm: const: invalid integer %q: %w", rest[2], err)
			}
			id = b.Constant(kt, iv)
		}
		p.names[destName] = id
		return nil
	}

	op, ok := reverseOpcodeByName[rest[0]]
	if !ok {
		return fmt.Errorf("asm: unknown or unsupported opcode %q", rest[0])
	}
	info := arities[op]
	rest = rest[1:]

	var destKind *types.Type
	if info.destKind {
		if len(rest) == 0 {
			return fmt.Errorf("asm: %s: missing result kind", op)
		}
		kt, ok := kindNames[rest[0]]
		if !ok {
			return fmt.Errorf("asm: %s: unknown kind %q", op, rest[0])
		}
		destKind = kt
		rest = rest[1:]
	} else if info.destI32 {
		destKind = types.TypeI32
	}

	var label ir.LabelID
	if info.isBranch {
		if len(rest) == 0 {
			return fmt.Errorf("asm: %s: missing branch target", op)
		}
		idx, err := blockRef(rest[0])
		if err != nil {
			return fmt.Errorf("asm: %s: %w", op, err)
		}
		if idx < 0 || idx >= len(blockLabels) {
			return fmt.Errorf("asm: %s: block reference b%d out of range", op, idx)
		}
		label = blockLabels[idx]
		rest = rest[1:]
	}

	var v1, v2 ir.ValueID = ir.NoValue, ir.NoValue
	if info.values >= 1 {
		if len(rest) == 0 {
			return fmt.Errorf("asm: %s: missing operand", op)
		}
		id, ok := p.names[rest[0]]
		if !ok {
			return fmt.Errorf("asm: %s: undefined value %q", op, rest[0])
		}
		v1 = id
		rest = rest[1:]
	}
	if info.values >= 2 {
		if len(rest) == 0 {
			return fmt.Errorf("asm: %s: missing second operand", op)
		}
		id, ok := p.names[rest[0]]
		if !ok {
			return fmt.Errorf("asm: %s: undefined value %q", op, rest[0])
		}
		v2 = id
		rest = rest[1:]
	}

	var aux int64
	if info.aux {
		if len(rest) == 0 {
			return fmt.Errorf("asm: %s: missing immediate", op)
		}
		n, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			return fmt.Errorf("asm: %s: invalid immediate %q: %w", op, rest[0], err)
		}
		aux = n
		rest = rest[1:]
	}
	if len(rest) != 0 {
		return fmt.Errorf("asm: %s: unexpected trailing tokens %v", op, rest)
	}

	var dest ir.ValueID = ir.NoValue
	if destKind != nil {
		dest = b.NewTemp(destKind)
	}

	var id ir.InsnID
	if info.isBranch {
		id = b.AppendBranch(op, label, v1, v2)
	} else {
		var err error
		id, _, err = b.Append(op, dest, v1, v2)
		if err != nil {
			return fmt.Errorf("asm: %s: %w", op, err)
		}
	}
	if info.aux {
		fn.Instruction(id).Aux = aux
	}

	if destName != "" {
		p.names[destName] = dest
	}
	return nil
}

func blockRef(tok string) (int, error) {
	if !strings.HasPrefix(tok, "b") {
		return 0, fmt.Errorf("expected a block reference like \"b0\", got %q", tok)
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil {
		return 0, fmt.Errorf("invalid block reference %q: %w", tok, err)
	}
	return n, nil
}

// WriteAsm renders fn back to its textual assembly form.
func WriteAsm(fn *ir.Function) ([]byte, error) {
	var buf bytes.Buffer
	sig := fn.Signature

	params := "-"
	if len(sig.Params) > 0 {
		names := make([]string, len(sig.Params))
		for i, p := range sig.Params {
			names[i] = p.Kind.String()
		}
		params = strings.Join(names, ",")
	}
	fmt.Fprintf(&buf, "function: fn %s %s\n", sig.Return.Kind, params)

	var werr error
	fn.EachBlock(func(id ir.BlockID, blk *ir.Block) {
		if werr != nil {
			return
		}
		buf.WriteString("block:\n")
		if id == 0 {
			// Constants have no defining instruction; declare them all up front.
			fn.EachValue(func(vid ir.ValueID, v *ir.Value) {
				if !v.IsConstant {
					return
				}
				lit := strconv.FormatInt(v.IntValue, 10)
				if v.Type.Kind.IsFloat() {
					lit = strconv.FormatFloat(v.FloatValue, 'g', -1, 64)
				}
				fmt.Fprintf(&buf, "\t%s = const %s %s\n", valueName(vid), v.Type.Kind, lit)
			})
		}
		if blk.Empty() {
			return
		}
		for i := blk.FirstInsn; i <= blk.LastInsn; i++ {
			in := fn.Instruction(i)
			if in.IsNop() {
				buf.WriteString("\tnop\n")
				continue
			}
			line, err := writeInsn(fn, in)
			if err != nil {
				werr = err
				return
			}
			buf.WriteString("\t" + line + "\n")
		}
	})
	if werr != nil {
		return nil, werr
	}
	return buf.Bytes(), nil
}

func writeInsn(fn *ir.Function, in *ir.Instruction) (string, error) {
	info, ok := arities[in.Opcode]
	if !ok {
		return "", fmt.Errorf("asm: opcode %s is not supported by the textual form", in.Opcode)
	}
	var parts []string
	if info.destKind || info.destI32 {
		parts = append(parts, fmt.Sprintf("v%d = %s", in.Dest, in.Opcode))
		if info.destKind {
			parts[0] += " " + fn.Value(in.Dest).Type.Kind.String()
		}
	} else {
		parts = append(parts, in.Opcode.String())
	}
	if info.isBranch {
		blockID, ok := fn.BlockByLabel(ir.LabelID(in.Dest))
		if !ok {
			return "", fmt.Errorf("asm: branch target label %d has no bound block", in.Dest)
		}
		parts = append(parts, fmt.Sprintf("b%d", blockID))
	}
	if info.values >= 1 {
		parts = append(parts, valueName(in.Value1))
	}
	if info.values >= 2 {
		parts = append(parts, valueName(in.Value2))
	}
	if info.aux {
		parts = append(parts, strconv.FormatInt(in.Aux, 10))
	}
	return strings.Join(parts, " "), nil
}

func valueName(id ir.ValueID) string { return fmt.Sprintf("v%d", id) }
