package version

import "testing"

func TestParseWithBuild(t *testing.T) {
	v, err := Parse("1.20.1+196")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !v.HasBuild() || *v.Build != 196 {
		t.Fatalf("expected build 196, got %+v", v.Build)
	}
	if v.Core() != "1.20.1" {
		t.Fatalf("expected core 1.20.1, got %s", v.Core())
	}
	if v.JarSuffix() != "1.20.1-196" {
		t.Fatalf("expected jar suffix 1.20.1-196, got %s", v.JarSuffix())
	}
}

func TestParseWithoutBuild(t *testing.T) {
	v, err := Parse("1.20.1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v.HasBuild() {
		t.Fatalf("expected no build")
	}
}

func TestCompareAbsentBuildIsMinusInfinity(t *testing.T) {
	withBuild, _ := Parse("1.20.1+1")
	withoutBuild, _ := Parse("1.20.1")

	if withoutBuild.Compare(withBuild) >= 0 {
		t.Fatalf("version without build should compare lower than any build")
	}
	if withBuild.Compare(withoutBuild) <= 0 {
		t.Fatalf("version with build should compare higher than absent build")
	}
}

func TestDominatesAlreadyUpToDate(t *testing.T) {
	current, _ := Parse("1.20.1+196")
	latest, _ := Parse("1.20.1+196")
	if !current.Dominates(latest) {
		t.Fatalf("equal versions should dominate each other")
	}
}

func TestDominatesAbsentBuildNeverDominates(t *testing.T) {
	current, _ := Parse("1.20.1")
	latest, _ := Parse("1.20.1+1")
	if current.Dominates(latest) {
		t.Fatalf("absent build should not dominate a present one")
	}
}

func TestMax(t *testing.T) {
	a, _ := Parse("1.20.1+1")
	b, _ := Parse("1.20.1+196")
	c, _ := Parse("1.19.0+500")

	best, ok := Max([]Version{a, b, c})
	if !ok {
		t.Fatal("expected a max")
	}
	if best.String() != b.String() {
		t.Fatalf("expected %s, got %s", b, best)
	}
}

func TestMaxEmpty(t *testing.T) {
	if _, ok := Max(nil); ok {
		t.Fatal("expected no max for empty slice")
	}
}
