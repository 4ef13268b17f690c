package mode

import "testing"

func TestModeIsValid(t *testing.T) {
	for _, m := range []Mode{Exact, Similar, Serendipity} {
		if !m.IsValid() {
			t.Errorf("expected %q to be valid", m)
		}
	}
	if Mode("telepathic").IsValid() {
		t.Error("expected unknown mode to be invalid")
	}
}

func TestPerturbationIsValid(t *testing.T) {
	for _, p := range []Perturbation{Gaussian, Uniform, Directional} {
		if !p.IsValid() {
			t.Errorf("expected %q to be valid", p)
		}
	}
	if Perturbation("chaotic").IsValid() {
		t.Error("expected unknown perturbation to be invalid")
	}
}

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()

	exact := table[Exact]
	if exact.NoiseLevel != 0 || exact.PoolSize != 20 {
		t.Errorf("unexpected exact settings: %+v", exact)
	}
	similar := table[Similar]
	if similar.NoiseLevel != 0.1 || similar.PoolSize != 45 {
		t.Errorf("unexpected similar settings: %+v", similar)
	}
	serendipity := table[Serendipity]
	if serendipity.NoiseLevel != 0.3 || serendipity.PoolSize != 125 {
		t.Errorf("unexpected serendipity settings: %+v", serendipity)
	}
}
