package mathutil

import (
	"math"
	"testing"
)

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFloor(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		decimals int
		expected float64
	}{
		{"exact", 1.2300, 2, 1.23},
		{"truncates", 0.123456, 3, 0.123},
		{"zero value", 0, 3, 0},
		{"zero decimals", 123.9, 0, 123},
		{"negative value truncates toward zero", -1.239, 2, -1.23},
		{"large number", 12345.6789, 2, 12345.67},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Floor(tt.value, tt.decimals)
			if !floatEquals(got, tt.expected) {
				t.Errorf("Floor(%v, %d) = %v, want %v", tt.value, tt.decimals, got, tt.expected)
			}
		})
	}
}

func TestFloorRoundTrip(t *testing.T) {
	// floor(x, d) * 10^d == floor(x * 10^d)
	cases := []float64{0.123456, 1.9999, 100.5, 0.0001, 987.654321}
	for _, x := range cases {
		for d := 0; d <= 6; d++ {
			scale := math.Pow10(d)
			lhs := Floor(x, d) * scale
			rhs := math.Trunc(x * scale)
			if !floatEquals(lhs, rhs) {
				t.Errorf("round-trip law broken for x=%v d=%d: %v != %v", x, d, lhs, rhs)
			}
		}
	}
}

func TestCeil(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		decimals int
		expected float64
	}{
		{"exact", 1.230, 2, 1.23},
		{"rounds up", 0.1231, 3, 0.124},
		{"zero value", 0, 3, 0},
		{"whole", 100, 2, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ceil(tt.value, tt.decimals)
			if !floatEquals(got, tt.expected) {
				t.Errorf("Ceil(%v, %d) = %v, want %v", tt.value, tt.decimals, got, tt.expected)
			}
		})
	}
}

func TestPrec(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		expected int
	}{
		{"three decimals", 0.001, 3},
		{"whole number", 1, 0},
		{"trailing zeros stripped", 0.100, 1},
		{"five decimals", 0.00001, 5},
		{"negative", -0.01, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Prec(tt.value)
			if got != tt.expected {
				t.Errorf("Prec(%v) = %d, want %d", tt.value, got, tt.expected)
			}
		})
	}
}

func TestRoundToLotSize(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		lotSize  float64
		expected float64
	}{
		{"exact match", 0.123, 0.001, 0.123},
		{"round down", 0.123456, 0.001, 0.123},
		{"round down 2", 1.999, 0.01, 1.99},
		{"whole numbers", 100.5, 1.0, 100.0},
		{"zero value", 0, 0.001, 0},
		{"zero lotSize", 0.123, 0, 0.123},
		{"negative lotSize", 0.123, -0.001, 0.123},
		{"large number", 12345.6789, 0.01, 12345.67},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToLotSize(tt.value, tt.lotSize)
			if !floatEquals(got, tt.expected) {
				t.Errorf("RoundToLotSize(%v, %v) = %v, want %v", tt.value, tt.lotSize, got, tt.expected)
			}
		})
	}
}

func TestRoundToLotSizeUp(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		lotSize  float64
		expected float64
	}{
		{"exact match", 0.123, 0.001, 0.123},
		{"round up", 0.1231, 0.001, 0.124},
		{"round up 2", 1.991, 0.01, 2.0},
		{"zero lotSize", 0.123, 0, 0.123},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToLotSizeUp(tt.value, tt.lotSize)
			if !floatEquals(got, tt.expected) {
				t.Errorf("RoundToLotSizeUp(%v, %v) = %v, want %v", tt.value, tt.lotSize, got, tt.expected)
			}
		})
	}
}

func TestSpread(t *testing.T) {
	if got := Spread(100, 100); !floatEquals(got, 0) {
		t.Errorf("Spread(100,100) = %v, want 0", got)
	}
	a, b := 105.0, 95.0
	s1 := Spread(a, b)
	s2 := Spread(b, a)
	if !floatEquals(s1, -s2) {
		t.Errorf("Spread not anti-symmetric: Spread(a,b)=%v Spread(b,a)=%v", s1, s2)
	}
	want := (a - b) / ((a + b) / 2)
	if !floatEquals(s1, want) {
		t.Errorf("Spread(%v,%v) = %v, want %v", a, b, s1, want)
	}
}
