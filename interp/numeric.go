package interp

import (
	"math"
	"math/bits"

	"wasmvm/wasm"
)

// evalI32Unop implements §4.1 "Numeric semantics" / "I32Unop".
func evalI32Unop(kind wasm.I32UnopKind, a wasm.Value) (wasm.Value, error) {
	switch kind {
	case wasm.I32Eqz:
		if a.I32 == 0 {
			return wasm.I32Val(1), nil
		}
		return wasm.I32Val(0), nil
	case wasm.I32Clz:
		return wasm.I32Val(int32(bits.LeadingZeros32(a.U32()))), nil
	case wasm.I32Ctz:
		return wasm.I32Val(int32(bits.TrailingZeros32(a.U32()))), nil
	case wasm.I32Popcnt:
		return wasm.I32Val(int32(bits.OnesCount32(a.U32()))), nil
	case wasm.I32Extend8S:
		return wasm.I32Val(int32(int8(a.I32))), nil
	case wasm.I32Extend16S:
		return wasm.I32Val(int32(int16(a.I32))), nil
	case wasm.I32TruncF64S:
		return truncF64ToI32(a.F64, true)
	case wasm.I32TruncF64U:
		return truncF64ToI32(a.F64, false)
	case wasm.F64ConvertI32S:
		return wasm.F64Val(float64(a.I32)), nil
	case wasm.F64ConvertI32U:
		return wasm.F64Val(float64(a.U32())), nil
	}
	panic("unreachable i32 unop kind")
}

// truncF64ToI32 implements the trap conditions named in §4.1 "F64Unop":
// NaN, infinite, or out of the target range traps.
func truncF64ToI32(f float64, signed bool) (wasm.Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return wasm.Value{}, errBadConversion
	}
	trunc := math.Trunc(f)
	if signed {
		if trunc < math.MinInt32 || trunc > math.MaxInt32 {
			return wasm.Value{}, errBadConversion
		}
		return wasm.I32Val(int32(trunc)), nil
	}
	if trunc < 0 || trunc > math.MaxUint32 {
		return wasm.Value{}, errBadConversion
	}
	return wasm.I32Val(int32(uint32(trunc))), nil
}

// evalI32Binop implements §4.1 "I32Binop", including the div/rem trap
// rules and the §9-corrected rotl/rotr (masked and rotated strictly
// within 32 bits).
func evalI32Binop(kind wasm.I32BinopKind, a, b wasm.Value) (wasm.Value, error) {
	au, bu := a.U32(), b.U32()
	ai, bi := a.I32, b.I32

	boolVal := func(v bool) wasm.Value {
		if v {
			return wasm.I32Val(1)
		}
		return wasm.I32Val(0)
	}

	switch kind {
	case wasm.I32Eq:
		return boolVal(ai == bi), nil
	case wasm.I32Ne:
		return boolVal(ai != bi), nil
	case wasm.I32LtS:
		return boolVal(ai < bi), nil
	case wasm.I32LtU:
		return boolVal(au < bu), nil
	case wasm.I32GtS:
		return boolVal(ai > bi), nil
	case wasm.I32GtU:
		return boolVal(au > bu), nil
	case wasm.I32LeS:
		return boolVal(ai <= bi), nil
	case wasm.I32LeU:
		return boolVal(au <= bu), nil
	case wasm.I32GeS:
		return boolVal(ai >= bi), nil
	case wasm.I32GeU:
		return boolVal(au >= bu), nil
	case wasm.I32Add:
		return wasm.I32Val(int32(au + bu)), nil
	case wasm.I32Sub:
		return wasm.I32Val(int32(au - bu)), nil
	case wasm.I32Mul:
		return wasm.I32Val(int32(au * bu)), nil
	case wasm.I32DivS:
		if bi == 0 {
			return wasm.Value{}, errDivByZero
		}
		if ai == math.MinInt32 && bi == -1 {
			return wasm.Value{}, errIntOverflow
		}
		return wasm.I32Val(ai / bi), nil
	case wasm.I32DivU:
		if bu == 0 {
			return wasm.Value{}, errDivByZero
		}
		return wasm.I32Val(int32(au / bu)), nil
	case wasm.I32RemS:
		if bi == 0 {
			return wasm.Value{}, errDivByZero
		}
		if ai == math.MinInt32 && bi == -1 {
			return wasm.I32Val(0), nil
		}
		return wasm.I32Val(ai % bi), nil
	case wasm.I32RemU:
		if bu == 0 {
			return wasm.Value{}, errDivByZero
		}
		return wasm.I32Val(int32(au % bu)), nil
	case wasm.I32And:
		return wasm.I32Val(int32(au & bu)), nil
	case wasm.I32Or:
		return wasm.I32Val(int32(au | bu)), nil
	case wasm.I32Xor:
		return wasm.I32Val(int32(au ^ bu)), nil
	case wasm.I32Shl:
		return wasm.I32Val(int32(au << (bu & 0x1f))), nil
	case wasm.I32ShrS:
		return wasm.I32Val(ai >> (bu & 0x1f)), nil
	case wasm.I32ShrU:
		return wasm.I32Val(int32(au >> (bu & 0x1f))), nil
	case wasm.I32Rotl:
		return wasm.I32Val(int32(bits.RotateLeft32(au, int(bu&0x1f)))), nil
	case wasm.I32Rotr:
		return wasm.I32Val(int32(bits.RotateLeft32(au, -int(bu&0x1f)))), nil
	}
	panic("unreachable i32 binop kind")
}

// evalF64Unop implements §4.1 "F64Unop" (excluding the truncating
// conversions, covered by evalI32Unop since their result type is i32).
func evalF64Unop(kind wasm.F64UnopKind, a wasm.Value) wasm.Value {
	switch kind {
	case wasm.F64Abs:
		return wasm.F64Val(math.Abs(a.F64))
	case wasm.F64Neg:
		return wasm.F64Val(-a.F64)
	case wasm.F64Ceil:
		return wasm.F64Val(math.Ceil(a.F64))
	case wasm.F64Floor:
		return wasm.F64Val(math.Floor(a.F64))
	case wasm.F64Trunc:
		return wasm.F64Val(math.Trunc(a.F64))
	case wasm.F64Nearest:
		return wasm.F64Val(math.RoundToEven(a.F64))
	case wasm.F64Sqrt:
		return wasm.F64Val(math.Sqrt(a.F64))
	}
	panic("unreachable f64 unop kind")
}

// evalF64Binop implements §4.1 "F64Binop". div by zero preserves the
// source's unconditional +Inf behavior per the SPEC_FULL.md §9 decision;
// min/max are NaN-propagating.
func evalF64Binop(kind wasm.F64BinopKind, a, b wasm.Value) wasm.Value {
	af, bf := a.F64, b.F64

	boolVal := func(v bool) wasm.Value {
		if v {
			return wasm.I32Val(1)
		}
		return wasm.I32Val(0)
	}

	switch kind {
	case wasm.F64Eq:
		return boolVal(af == bf)
	case wasm.F64Ne:
		return boolVal(af != bf)
	case wasm.F64Lt:
		return boolVal(af < bf)
	case wasm.F64Gt:
		return boolVal(af > bf)
	case wasm.F64Le:
		return boolVal(af <= bf)
	case wasm.F64Ge:
		return boolVal(af >= bf)
	case wasm.F64Add:
		return wasm.F64Val(af + bf)
	case wasm.F64Sub:
		return wasm.F64Val(af - bf)
	case wasm.F64Mul:
		return wasm.F64Val(af * bf)
	case wasm.F64Div:
		if bf == 0 {
			return wasm.F64Val(math.Inf(1))
		}
		return wasm.F64Val(af / bf)
	case wasm.F64Min:
		if math.IsNaN(af) || math.IsNaN(bf) {
			return wasm.F64Val(math.NaN())
		}
		return wasm.F64Val(math.Min(af, bf))
	case wasm.F64Max:
		if math.IsNaN(af) || math.IsNaN(bf) {
			return wasm.F64Val(math.NaN())
		}
		return wasm.F64Val(math.Max(af, bf))
	}
	panic("unreachable f64 binop kind")
}
