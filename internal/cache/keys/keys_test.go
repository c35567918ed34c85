package keys

import (
	"math"
	"regexp"
	"strings"
	"testing"
)

func TestElevation_Deterministic(t *testing.T) {
	k1 := Elevation(46.0207, 7.7491)
	k2 := Elevation(46.0207, 7.7491)
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
	if !strings.HasPrefix(k1, "elev:15:") {
		t.Fatalf("unexpected key %s", k1)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9:]+$`).MatchString(k1) {
		t.Fatalf("key contains disallowed characters: %s", k1)
	}
}

func TestElevation_SubMetreNeighboursShareKey(t *testing.T) {
	// ~1 cm apart
	if Elevation(46.02070000, 7.74910000) != Elevation(46.02070009, 7.74910009) {
		t.Fatalf("coordinates a centimetre apart should share a cell")
	}
	// ~100 m apart
	if Elevation(46.0207, 7.7491) == Elevation(46.0216, 7.7491) {
		t.Fatalf("distant coordinates must not share a key")
	}
}

func TestElevation_InvalidCoordinatesFallBack(t *testing.T) {
	k := Elevation(math.NaN(), 7)
	if !strings.HasPrefix(k, "elev:raw:") {
		t.Fatalf("key=%s want raw fallback", k)
	}
}
