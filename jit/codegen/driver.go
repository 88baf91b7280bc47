// Package codegen implements the code-generation driver: the per-function
// compile entry point that runs the optimizer, walks blocks through a
// jit/backend.Backend, patches branch and return-site fix-ups, and
// retries on a grown code-cache page when emission runs out of room.
//
// The per-opcode emission loop it drives
// mirrors the teacher's lang/compiler/asm.go disassembler round trip and
// lang/machine/machine.go's per-opcode dispatch, the same pairing
// jit/backend/asm.go and jit/backend/vmbackend already follow.
package codegen

import (
	"sort"

	"github.com/mna/corejit/jit/backend"
	"github.com/mna/corejit/jit/cfg"
	"github.com/mna/corejit/jit/codecache"
	"github.com/mna/corejit/jit/config"
	jitcontext "github.com/mna/corejit/jit/context"
	"github.com/mna/corejit/jit/ir"
	"github.com/mna/corejit/jit/jerr"
	"github.com/mna/corejit/jit/regalloc"
)

// Driver compiles ir.Functions against a backend.Backend into a
// jit/context.Context's code cache. Driver carries no per-compile state of
// its own: every field that survives a restart lives on the Function or
// the Context.
type Driver struct{}

// New returns a ready Driver.
func New() *Driver { return &Driver{} }

// Compile runs the full compile pipeline end to end: it is idempotent for a
// function that is already compiled and not marked IsRecompilable
// (compile(f); compile(f) produces the same entry_point for a
// non-recompilable function), otherwise it optimizes (if
// needed), acquires ctx's build lock, and emits, retrying on a grown page
// until it succeeds or ctx.Options.MaxRestarts is exhausted.
func (d *Driver) Compile(ctx *jitcontext.Context, fn *ir.Function, be backend.Backend) (uintptr, error) {
	if fn == nil {
		return 0, jerr.New(jerr.NullFunction, "compile: nil function")
	}
	if fn.IsCompiled && !fn.IsRecompilable {
		return fn.EntryPoint, nil
	}

	ctx.Lock()
	defer ctx.Unlock()

	for attempt := 0; attempt <= ctx.Options.MaxRestarts; attempt++ {
		if !fn.IsOptimized {
			d.optimize(fn, be, ctx.Options)
		}

		entry, err := d.tryCompile(ctx, fn, be)
		if err == nil {
			fn.EntryPoint = entry
			fn.CodeStart = int64(entry)
			fn.IsCompiled = true
			return entry, nil
		}
		if !jerr.Is(err, jerr.CacheFull) {
			return 0, err
		}

		// Reset locations/addresses/fix-ups and retry on a bigger page.
		// ResetForRestart also clears IsOptimized,
		// so the next loop iteration rebuilds the CFG/liveness/live-range
		// state and reassigns global registers from scratch.
		fn.ResetForRestart()
		ctx.Cache.GrowPage(ctx.Options.PageGrowthFactor)
	}
	return 0, jerr.New(jerr.CompileErr, "exceeded %d cache-full restarts", ctx.Options.MaxRestarts)
}

// optimize runs the CFG/liveness/live-range analysis and the usage-ranked
// global register assignment. The interference-graph allocator
// (jit/coloring) builds on the same live ranges but is not wired into this
// default pipeline — see coloring.Color and DESIGN.md's "graph-coloring is
// an alternative path" decision.
func (d *Driver) optimize(fn *ir.Function, be backend.Backend, opts config.Options) {
	g := cfg.Build(fn)
	cfg.ComputeLiveness(fn, g)
	cfg.BuildLiveRanges(fn, g)
	cfg.SynthesizeFixedRanges(fn, be.Target().CallClobbered)

	if opts.GlobalRegisters {
		assignGlobalRegisters(fn, be)
	}
	fn.IsOptimized = true
}

// assignGlobalRegisters ranks and assigns global registers: candidates (usage_count >= 3, not
// addressable/volatile, and accepted by the backend's IsGlobalCandidate)
// are ranked by usage count and assigned the target's GlobalCandidates
// registers top-down, one value per register, skipped entirely for a
// function with a try block (longjmp clobbers globals) or a tail call.
func assignGlobalRegisters(fn *ir.Function, be backend.Backend) {
	if fn.HasTry || fn.HasTailCall {
		return
	}
	target := be.Target()
	if len(target.GlobalCandidates) == 0 {
		return
	}

	var candidates []ir.ValueID
	fn.EachValue(func(vid ir.ValueID, v *ir.Value) {
		if v.GlobalCandidate() && be.IsGlobalCandidate(v.Type) {
			candidates = append(candidates, vid)
		}
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return fn.Value(candidates[i]).UsageCount > fn.Value(candidates[j]).UsageCount
	})

	n := len(target.GlobalCandidates)
	if len(candidates) < n {
		n = len(candidates)
	}
	for i := 0; i < n; i++ {
		v := fn.Value(candidates[i])
		v.InGlobalRegister = true
		v.HasGlobalRegister = true
		v.GlobalReg = target.GlobalCandidates[i]
	}
}

// tryCompile runs one full emission attempt: reserve a cache page, emit
// the prologue placeholder, walk every block (patching forward fix-ups as
// block addresses become known), emit the epilogue and patch every
// return-site fix-up to it, then backfill the prologue now that the frame
// size is final. Any jerr.CacheFull bubbles up for Compile's restart loop;
// every other failure discards the reserved region before returning.
func (d *Driver) tryCompile(ctx *jitcontext.Context, fn *ir.Function, be backend.Backend) (uintptr, error) {
	target := be.Target()
	cur, remaining, err := ctx.Cache.StartMethod(int32(ctx.Options.PageAlign), fn)
	if err != nil {
		return 0, err
	}
	funcBase := cur.Address(ctx.Cache)

	regs := regalloc.NewFile(fn, target.NumWordRegs+target.NumFloatRegs)
	for _, r := range target.Permanent {
		regs.MarkPermanent(r)
	}
	fn.EachValue(func(_ ir.ValueID, v *ir.Value) {
		if v.InGlobalRegister {
			regs.MarkGlobal(v.GlobalReg)
		}
	})

	g := backend.NewGen(int(remaining), regs)

	prologOff, err := g.Reserve(target.PrologSize)
	if err != nil {
		ctx.Cache.EndMethod(cur, codecache.StatusDiscard, nil)
		return 0, err
	}

	var offsets []OffsetEntry
	emitErr := func() error {
		var failed error
		fn.EachBlock(func(id ir.BlockID, blk *ir.Block) {
			if failed != nil {
				return
			}
			blk.Address = funcBase + g.Len()
			for _, off := range blk.FixUps {
				rel := int32(blk.Address - (funcBase + off + 4))
				g.PatchAt(off, rel)
			}
			blk.ClearFixUps()

			if blk.Empty() {
				return
			}
			for i := blk.FirstInsn; i <= blk.LastInsn; i++ {
				in := fn.Instruction(i)
				if in.Opcode == ir.MARK_OFFSET {
					offsets = append(offsets, OffsetEntry{
						BytecodeOffset: uint32(in.Aux),
						NativeOffset:   uint32(g.Len()),
					})
					continue
				}
				if err := be.GenInsn(g, fn, id, i); err != nil {
					failed = err
					return
				}
			}
		})
		return failed
	}()
	if emitErr != nil {
		ctx.Cache.EndMethod(cur, codecache.StatusDiscard, nil)
		return 0, emitErr
	}

	// A backward branch queues its fix-up on a block whose address was
	// already recorded above; patch those now that every address is known.
	fn.EachBlock(func(_ ir.BlockID, blk *ir.Block) {
		for _, off := range blk.FixUps {
			g.PatchAt(off, int32(blk.Address-(funcBase+off+4)))
		}
		blk.ClearFixUps()
	})

	epilogStart := funcBase + g.Len()
	if err := be.GenEpilog(g, fn); err != nil {
		ctx.Cache.EndMethod(cur, codecache.StatusDiscard, nil)
		return 0, err
	}
	for _, off := range g.ReturnFixups() {
		rel := int32(epilogStart - (funcBase + off + 4))
		g.PatchAt(off, rel)
	}

	g.BeginPatch(prologOff)
	n, err := be.GenProlog(g, fn)
	g.EndPatch()
	if err != nil {
		ctx.Cache.EndMethod(cur, codecache.StatusDiscard, nil)
		return 0, err
	}
	if n > target.PrologSize {
		ctx.Cache.EndMethod(cur, codecache.StatusDiscard, nil)
		return 0, jerr.New(jerr.CompileErr, "prologue wrote %d bytes, only %d reserved", n, target.PrologSize)
	}

	ctx.Cache.EndMethod(cur, codecache.StatusOK, g.Code)
	if err := ctx.Cache.FlushExec(funcBase, g.Len()); err != nil {
		return 0, err
	}
	fn.CodeEnd = funcBase + g.Len()

	if len(offsets) > 0 {
		encoded := EncodeOffsetMap(offsets)
		buf, pageOff, err := ctx.Cache.AllocAux(cur.PageIndex(), int64(len(encoded)))
		if err != nil {
			return 0, err
		}
		copy(buf, encoded)
		fn.OffsetMapPage = cur.PageIndex()
		fn.OffsetMapOff = pageOff
		fn.OffsetMapLen = int64(len(encoded))
	}

	var handlers []HandlerEntry
	fn.EachBlock(func(_ ir.BlockID, blk *ir.Block) {
		if blk.Handler == ir.NoBlock {
			return
		}
		handlers = append(handlers, HandlerEntry{
			BlockStart:     uint32(blk.Address - funcBase),
			HandlerAddress: uint32(fn.Block(blk.Handler).Address - funcBase),
		})
	})
	if len(handlers) > 0 {
		encoded := EncodeEHTable(handlers)
		buf, pageOff, err := ctx.Cache.AllocAux(cur.PageIndex(), int64(len(encoded)))
		if err != nil {
			return 0, err
		}
		copy(buf, encoded)
		fn.EHTablePage = cur.PageIndex()
		fn.EHTableOff = pageOff
		fn.EHTableLen = int64(len(encoded))
	}

	return uintptr(funcBase), nil
}
