package media

import "testing"

func TestParseRationalFraction(t *testing.T) {
	num, den := parseRational("30000/1001")
	if num != 30000 || den != 1001 {
		t.Fatalf("got %d/%d", num, den)
	}
}

func TestParseRationalWholeNumber(t *testing.T) {
	num, den := parseRational("25")
	if num != 25 || den != 1 {
		t.Fatalf("got %d/%d", num, den)
	}
}

func TestParseRationalInvalidReturnsZero(t *testing.T) {
	num, den := parseRational("not-a-rate")
	if num != 0 || den != 0 {
		t.Fatalf("got %d/%d, want 0/0", num, den)
	}
}

func TestVideoInfoFPSDefaultsWhenDegenerate(t *testing.T) {
	v := VideoInfo{}
	if v.FPS() != 25 {
		t.Fatalf("got %f, want 25", v.FPS())
	}
}

func TestVideoInfoFPSComputesRatio(t *testing.T) {
	v := VideoInfo{FPSNum: 60, FPSDen: 2}
	if v.FPS() != 30 {
		t.Fatalf("got %f, want 30", v.FPS())
	}
}

func TestQualityToCRFExtremes(t *testing.T) {
	if qualityToCRF(0) != 23 {
		t.Fatalf("default crf mismatch: %d", qualityToCRF(0))
	}
	if qualityToCRF(100) != 0 {
		t.Fatalf("best quality crf mismatch: %d", qualityToCRF(100))
	}
	if qualityToCRF(200) != 0 {
		t.Fatalf("clamp above 100 mismatch: %d", qualityToCRF(200))
	}
}
