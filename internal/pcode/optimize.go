package pcode

// Optimize runs peephole rewriting, constant propagation, dead-code
// elimination and type specialization, in that order, repeating the
// whole round until nothing changes. Each pass only removes
// instructions, replaces loads with constants, or rewrites generic ops
// to typed ones, so the rounds terminate and optimizing
// already-optimized output is a fixed point.
func Optimize(instrs []Instruction) []Instruction {
	for {
		before := len(instrs)
		changed := false

		instrs, changed = peephole(instrs)
		out, c := propagateConstants(instrs)
		instrs, changed = out, changed || c
		out, c = eliminateDead(instrs)
		instrs, changed = out, changed || c
		out, c = specializeTypes(instrs)
		instrs, changed = out, changed || c

		if !changed && len(instrs) == before {
			return instrs
		}
	}
}

// peephole applies two local rewrites:
//   - two adjacent integer-constant loads followed by an add collapse
//     into one constant load of the sum;
//   - a store immediately followed by a load of the same address
//     collapses the load into a duplicate-top instruction (store keeps
//     its value on the stack, so the reloaded value is already there).
func peephole(instrs []Instruction) ([]Instruction, bool) {
	out := make([]Instruction, 0, len(instrs))
	changed := false
	targets := jumpTargets(instrs)

	for i := 0; i < len(instrs); i++ {
		// Fusing across a jump target would change what the jumped-to
		// instruction is; skip windows that straddle one.
		if i+2 < len(instrs) &&
			instrs[i].Op == OpConstI && instrs[i+1].Op == OpConstI &&
			(instrs[i+2].Op == OpAdd || instrs[i+2].Op == OpAddI) &&
			!targets[i+1] && !targets[i+2] {
			fused := Instruction{
				Op:        OpConstI,
				Immediate: instrs[i].Immediate + instrs[i+1].Immediate,
				HasImm:    true,
				Meta:      instrs[i].Meta,
			}
			out = append(out, fused)
			out = append(out, instrs[i+3:]...)
			return remapAfterSplice(out, i, 2), true
		}
		if i+1 < len(instrs) &&
			instrs[i].Op == OpStore && instrs[i+1].Op == OpLoad &&
			len(instrs[i].Operands) == 1 && len(instrs[i+1].Operands) == 1 &&
			instrs[i].Operands[0] == instrs[i+1].Operands[0] &&
			!targets[i+1] {
			out = append(out, instrs[i])
			out = append(out, Instruction{Op: OpDup, Meta: instrs[i+1].Meta})
			out = append(out, instrs[i+2:]...)
			return out, true
		}
		out = append(out, instrs[i])
	}
	return out, changed
}

// remapAfterSplice fixes jump targets after delta instructions were
// removed at index at.
func remapAfterSplice(out []Instruction, at, delta int) []Instruction {
	for j := range out {
		switch out[j].Op {
		case OpJump, OpBranch:
			if t := out[j].Target(); t > at {
				out[j].Operands[0] = uint32(t - delta)
			}
		}
	}
	return out
}

// propagateConstants tracks an address-to-constant table populated by
// constant stores. Loads from tracked addresses become constant loads;
// any store to a tracked address with a non-constant value invalidates
// the entry. The table resets at control-flow boundaries so values
// cannot leak across paths the linear scan does not model.
func propagateConstants(instrs []Instruction) ([]Instruction, bool) {
	type entry struct {
		imm   int32
		float bool
	}
	table := make(map[uint32]entry)
	targets := jumpTargets(instrs)
	changed := false

	// lastConst tracks whether the current stack top is a known
	// constant (set by a constant load immediately preceding a store).
	var lastConst *entry

	out := make([]Instruction, len(instrs))
	copy(out, instrs)

	for i := range out {
		if targets[i] {
			table = make(map[uint32]entry)
			lastConst = nil
		}
		in := out[i]
		switch in.Op {
		case OpConstI:
			lastConst = &entry{imm: in.Immediate}
		case OpConstF:
			lastConst = &entry{imm: in.Immediate, float: true}
		case OpStore:
			addr := in.Operands[0]
			if lastConst != nil {
				table[addr] = *lastConst
			} else {
				delete(table, addr)
			}
			// Store does not pop, so a known constant stays known.
		case OpLoad:
			addr := in.Operands[0]
			if e, ok := table[addr]; ok {
				op := OpConstI
				if e.float {
					op = OpConstF
				}
				out[i] = Instruction{Op: op, Immediate: e.imm, HasImm: true, Meta: in.Meta}
				lastConst = &e
				changed = true
			} else {
				lastConst = nil
			}
		case OpDup:
			// Duplicating a known constant top is another constant load.
			if lastConst != nil {
				op := OpConstI
				if lastConst.float {
					op = OpConstF
				}
				out[i] = Instruction{Op: op, Immediate: lastConst.imm, HasImm: true, Meta: in.Meta}
				changed = true
			}
		case OpJump, OpBranch:
			table = make(map[uint32]entry)
			lastConst = nil
		default:
			lastConst = nil
		}
	}
	return out, changed
}

// eliminateDead drops instructions unreachable from instruction 0.
// Successors: unconditional jump has one, conditional jump two (target
// and fallthrough), return none, everything else falls through.
// Reachability only follows existing control edges; no edge is
// invented or removed.
func eliminateDead(instrs []Instruction) ([]Instruction, bool) {
	if len(instrs) == 0 {
		return instrs, false
	}

	reachable := make([]bool, len(instrs))
	work := []int{0}
	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		if i < 0 || i >= len(instrs) || reachable[i] {
			continue
		}
		reachable[i] = true
		switch instrs[i].Op {
		case OpJump:
			work = append(work, instrs[i].Target())
		case OpBranch:
			work = append(work, instrs[i].Target(), i+1)
		case OpReturn:
			// no successors
		default:
			work = append(work, i+1)
		}
	}

	remap := make([]int, len(instrs))
	kept := 0
	for i, r := range reachable {
		remap[i] = kept
		if r {
			kept++
		}
	}
	if kept == len(instrs) {
		return instrs, false
	}

	out := make([]Instruction, 0, kept)
	for i, in := range instrs {
		if !reachable[i] {
			continue
		}
		switch in.Op {
		case OpJump, OpBranch:
			if t := in.Target(); t >= 0 && t < len(instrs) {
				in.Operands = []uint32{uint32(remap[t])}
			}
		}
		out = append(out, in)
	}
	return out, true
}

// specializeTypes rewrites generic arithmetic to its fixed-type form
// when a conservative linear stack simulation proves both operands
// share one primitive numeric type. The simulated stack resets at
// control-flow boundaries; anything unproven stays generic.
func specializeTypes(instrs []Instruction) ([]Instruction, bool) {
	targets := jumpTargets(instrs)
	addrTypes := make(map[uint32]NumType)
	changed := false

	out := make([]Instruction, len(instrs))
	copy(out, instrs)

	var stack []NumType
	push := func(t NumType) { stack = append(stack, t) }
	pop := func() NumType {
		if len(stack) == 0 {
			return NumUnknown
		}
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return t
	}

	for i := range out {
		if targets[i] {
			stack = stack[:0]
		}
		in := &out[i]
		switch {
		case in.Op == OpConstI:
			in.Meta.Inferred = NumInt
			push(NumInt)
		case in.Op == OpConstF:
			in.Meta.Inferred = NumFloat
			push(NumFloat)
		case in.Op == OpLoad:
			t := addrTypes[in.Operands[0]]
			in.Meta.Inferred = t
			push(t)
		case in.Op == OpStore:
			if len(stack) > 0 {
				addrTypes[in.Operands[0]] = stack[len(stack)-1]
			} else {
				addrTypes[in.Operands[0]] = NumUnknown
			}
		case in.Op == OpDup:
			if len(stack) > 0 {
				push(stack[len(stack)-1])
			} else {
				push(NumUnknown)
			}
		case in.Op.IsGenericArith():
			r, l := pop(), pop()
			switch {
			case l == NumInt && r == NumInt:
				in.Op = typedOp(in.Op, NumInt)
				in.Meta.Inferred = NumInt
				push(NumInt)
				changed = true
			case l == NumFloat && r == NumFloat:
				in.Op = typedOp(in.Op, NumFloat)
				in.Meta.Inferred = NumFloat
				push(NumFloat)
				changed = true
			default:
				push(NumUnknown)
			}
		case in.Op == OpBranch:
			pop()
			stack = stack[:0]
		case in.Op == OpJump, in.Op == OpReturn:
			stack = stack[:0]
		default:
			// Typed arithmetic keeps its known result type.
			switch in.Op {
			case OpAddI, OpSubI, OpMulI, OpDivI:
				pop()
				pop()
				push(NumInt)
			case OpAddF, OpSubF, OpMulF, OpDivF:
				pop()
				pop()
				push(NumFloat)
			}
		}
	}
	return out, changed
}

// typedOp maps a generic arithmetic opcode to its typed form.
func typedOp(op Opcode, t NumType) Opcode {
	base := OpAddI
	if t == NumFloat {
		base = OpAddF
	}
	return base + Opcode(op-OpAdd)
}

// jumpTargets returns the set of instruction indexes that are jump or
// branch targets.
func jumpTargets(instrs []Instruction) map[int]bool {
	targets := make(map[int]bool)
	for _, in := range instrs {
		switch in.Op {
		case OpJump, OpBranch:
			if t := in.Target(); t >= 0 {
				targets[t] = true
			}
		}
	}
	return targets
}
