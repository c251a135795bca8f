package device

import "fmt"

// GemmArgs describes C[i] = Alpha * A[i] x B[i] + Beta * C[i] for i in [0, BatchCount).
//
// All matrices are row-major. A[i] is M x K starting at OffsetA + i*StrideA,
// B[i] is K x N starting at OffsetB + i*StrideB and C[i] is M x N starting at
// OffsetC + i*StrideC. Offsets and strides count float32 elements. A stride of
// zero shares one matrix across the batch.
type GemmArgs struct {
	M, N, K     int
	Alpha, Beta float32

	A, B, C                   Buffer
	OffsetA, OffsetB, OffsetC int
	StrideA, StrideB, StrideC int

	BatchCount int
}

// Validate checks dimensions and that every batch element fits its buffer.
func (g GemmArgs) Validate() error {
	if g.A == nil || g.B == nil || g.C == nil {
		return fmt.Errorf("gemm: nil buffer argument")
	}
	if g.M <= 0 || g.N <= 0 || g.K <= 0 {
		return fmt.Errorf("gemm: invalid dimensions M=%d N=%d K=%d", g.M, g.N, g.K)
	}
	if g.BatchCount <= 0 {
		return fmt.Errorf("gemm: batch count must be positive, got %d", g.BatchCount)
	}
	if g.OffsetA < 0 || g.OffsetB < 0 || g.OffsetC < 0 || g.StrideA < 0 || g.StrideB < 0 || g.StrideC < 0 {
		return fmt.Errorf("gemm: negative offset or stride")
	}
	last := g.BatchCount - 1
	if end := g.OffsetA + last*g.StrideA + g.M*g.K; end*4 > g.A.Size() {
		return fmt.Errorf("gemm: A needs %d elements, buffer holds %d", end, g.A.Size()/4)
	}
	if end := g.OffsetB + last*g.StrideB + g.K*g.N; end*4 > g.B.Size() {
		return fmt.Errorf("gemm: B needs %d elements, buffer holds %d", end, g.B.Size()/4)
	}
	if end := g.OffsetC + last*g.StrideC + g.M*g.N; end*4 > g.C.Size() {
		return fmt.Errorf("gemm: C needs %d elements, buffer holds %d", end, g.C.Size()/4)
	}
	return nil
}

// Single returns the arguments of batch element i as a one-element GEMM.
func (g GemmArgs) Single(i int) GemmArgs {
	s := g
	s.OffsetA = g.OffsetA + i*g.StrideA
	s.OffsetB = g.OffsetB + i*g.StrideB
	s.OffsetC = g.OffsetC + i*g.StrideC
	s.StrideA, s.StrideB, s.StrideC = 0, 0, 0
	s.BatchCount = 1
	return s
}
