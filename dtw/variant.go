package dtw

import "github.com/grailbio/base/log"

// Kind enumerates the DTW kernels Run dispatches between, with a single
// switch made once per call, not once per cell. eval does not go through
// Run; it calls Global, GlobalTraceback or GlobalSlantedBandedAntidiag
// directly.
type Kind uint8

const (
	KindGlobal Kind = iota
	KindSlantedBanded
	KindSlantedBandedAntidiag
	KindDiagonalBanded
	KindSemiGlobal
)

// Variant names a DTW kernel and, for the banded kinds, the band radius to
// run it with.
type Variant struct {
	Kind       Kind
	BandRadius int
}

// Run dispatches to the named kernel. BandRadius is ignored for Kind values
// that don't use a band.
func Run(v Variant, a, b []float32, excludeLast bool) float32 {
	switch v.Kind {
	case KindGlobal:
		return Global(a, b, excludeLast)
	case KindSlantedBanded:
		return GlobalSlantedBanded(a, b, v.BandRadius, excludeLast)
	case KindSlantedBandedAntidiag:
		return GlobalSlantedBandedAntidiag(a, b, v.BandRadius, excludeLast)
	case KindDiagonalBanded:
		return GlobalDiagonalBanded(a, b, v.BandRadius, excludeLast)
	case KindSemiGlobal:
		return SemiGlobal(a, b, excludeLast)
	default:
		log.Panicf("dtw: unknown variant kind %d", v.Kind)
		return 0
	}
}
