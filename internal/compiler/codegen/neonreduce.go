package codegen

import (
	"github.com/albanread/nbcgo/internal/compiler/arm64"
	"github.com/albanread/nbcgo/internal/compiler/ast"
)

// The NEON reducer registry binds (intrinsic, vector type) to an encoder.
// The intrinsic names are the LLVM-style tokens carried by the lowered
// reduction nodes. When no encoder matches, the code generator falls back
// to scalarReduction, a single-element reduction that reads the first lane;
// no loop over the remaining lanes is emitted.

// ReducerEncoder emits the pairwise step for two source vector registers
// into a destination register.
type ReducerEncoder func(vd, vn, vm arm64.Reg) arm64.Instruction

type reducerKey struct {
	intrinsic string
	vecType   ast.Type
}

// ReducerRegistry maps intrinsic/type pairs to encoders.
type ReducerRegistry struct {
	encoders map[reducerKey]ReducerEncoder
}

// NewReducerRegistry returns the registry with the standard pairwise
// reducers registered on their supported arrangements.
func NewReducerRegistry() *ReducerRegistry {
	r := &ReducerRegistry{encoders: make(map[reducerKey]ReducerEncoder)}

	vec := func(enc func(vd, vn, vm arm64.Reg, arr arm64.Arrangement) arm64.Instruction, arr arm64.Arrangement) ReducerEncoder {
		return func(vd, vn, vm arm64.Reg) arm64.Instruction { return enc(vd, vn, vm, arr) }
	}

	// Float pairwise on 32-bit lanes.
	r.register("llvm.arm.neon.vpmin.v4f32", ast.TypeFVec, vec(arm64.FMinP, arm64.Arr4S))
	r.register("llvm.arm.neon.vpmin.v2f32", ast.TypeFPair, vec(arm64.FMinP, arm64.Arr2S))
	r.register("llvm.arm.neon.vpmax.v4f32", ast.TypeFVec, vec(arm64.FMaxP, arm64.Arr4S))
	r.register("llvm.arm.neon.vpmax.v2f32", ast.TypeFPair, vec(arm64.FMaxP, arm64.Arr2S))
	r.register("llvm.arm.neon.vpadd.v4f32", ast.TypeFVec, vec(arm64.FAddP, arm64.Arr4S))
	r.register("llvm.arm.neon.vpadd.v2f32", ast.TypeFPair, vec(arm64.FAddP, arm64.Arr2S))

	// Integer pairwise.
	r.register("llvm.arm.neon.vpadd.v4i32", ast.TypeVec, vec(arm64.AddP, arm64.Arr4S))
	r.register("llvm.arm.neon.vpadd.v2i32", ast.TypePair, vec(arm64.AddP, arm64.Arr2S))
	r.register("llvm.arm.neon.vpadd.v4i16", ast.TypeQuad, vec(arm64.AddP, arm64.Arr4H))
	r.register("llvm.arm.neon.vpmins.v4i32", ast.TypeVec, vec(arm64.SMinP, arm64.Arr4S))
	r.register("llvm.arm.neon.vpmins.v4i16", ast.TypeQuad, vec(arm64.SMinP, arm64.Arr4H))
	r.register("llvm.arm.neon.vpmaxs.v4i32", ast.TypeVec, vec(arm64.SMaxP, arm64.Arr4S))
	r.register("llvm.arm.neon.vpmaxs.v4i16", ast.TypeQuad, vec(arm64.SMaxP, arm64.Arr4H))
	return r
}

func (r *ReducerRegistry) register(intrinsic string, t ast.Type, enc ReducerEncoder) {
	r.encoders[reducerKey{intrinsic, t}] = enc
}

// Lookup returns the encoder for the pair, or false when the code generator
// falls back to the single-element scalar reduction.
func (r *ReducerRegistry) Lookup(intrinsic string, t ast.Type) (ReducerEncoder, bool) {
	enc, ok := r.encoders[reducerKey{intrinsic, t}]
	return enc, ok
}
