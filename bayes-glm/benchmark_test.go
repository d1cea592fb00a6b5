package bayesglm

import (
	"testing"
)

func BenchmarkFixpt(b *testing.B) {
	pb := newDiagProblem(b)
	theta := []float64{2, 0.35, 0.01}
	cfg, err := newConfig(nil)
	if err != nil {
		b.Fatal(err)
	}
	s, err := newEMState(theta, pb.prior, pb.data, cfg)
	if err != nil {
		b.Fatal(err)
	}
	if err := s.prepare(theta); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.fixpt(theta); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFindTheta(b *testing.B) {
	pb := newDiagProblem(b)
	theta0 := []float64{2.4, 0.42, 0.012}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := FindTheta(theta0, pb.prior, pb.data, WithTol(1e-4)); err != nil {
			b.Fatal(err)
		}
	}
}
