package skintone

import (
	"math"
	"testing"
)

func TestColorAggregator_ClassOf(t *testing.T) {
	ca := NewColorAggregator(DefaultOptions().Aggregation)

	tests := []struct {
		luma float64
		want ToneClass
	}{
		{240, ToneVeryLight},
		{226, ToneVeryLight},
		{150, ToneNormal},
		{56, ToneVeryDark},
		{10, ToneVeryDark},
	}
	for _, tt := range tests {
		if got := ca.ClassOf(tt.luma); got != tt.want {
			t.Errorf("ClassOf(%.0f): expected %s, got %s", tt.luma, tt.want, got)
		}
	}
}

func TestAggregate_NoSamplesUsesCenterMean(t *testing.T) {
	ca := NewColorAggregator(DefaultOptions().Aggregation)
	r := NewUniformRaster(30, 30, 0, 0, 0)
	for y := 10; y < 20; y++ {
		for x := 10; x < 20; x++ {
			r.Set(x, y, 90, 60, 30)
		}
	}

	agg := ca.Aggregate(r, nil)
	if agg.Method != MethodCenterMean {
		t.Errorf("Expected %s, got %s", MethodCenterMean, agg.Method)
	}
	if agg.RGB != (RGB{90, 60, 30}) {
		t.Errorf("Expected centre colour, got %v", agg.RGB)
	}
}

func TestAggregate_NormalWeightsByBrightness(t *testing.T) {
	ca := NewColorAggregator(DefaultOptions().Aggregation)
	samples := []RegionSample{
		{Name: "a", RGB: RGB{200, 160, 120}, Weight: 1},
		{Name: "b", RGB: RGB{100, 80, 60}, Weight: 1},
	}

	agg := ca.Aggregate(nil, samples)
	if agg.Class != ToneNormal || agg.Method != MethodWeighted {
		t.Errorf("Expected weighted normal aggregate, got %+v", agg)
	}
	// Brighter sample carries twice the weight
	if math.Abs(agg.RGB[0]-(2*200+100)/3.0) > 1e-9 {
		t.Errorf("Expected brightness-weighted red channel, got %f", agg.RGB[0])
	}
}

func TestAggregate_VeryLightFavoursLightestSamples(t *testing.T) {
	ca := NewColorAggregator(DefaultOptions().Aggregation)
	samples := []RegionSample{
		{Name: "a", RGB: RGB{250, 248, 244}, Weight: 1},
		{Name: "b", RGB: RGB{250, 248, 244}, Weight: 1},
		{Name: "c", RGB: RGB{180, 170, 160}, Weight: 0.2},
	}

	agg := ca.Aggregate(nil, samples)
	if agg.Class != ToneVeryLight {
		t.Fatalf("Expected very light class, got %s", agg.Class)
	}
	plain := (250*2 + 180*0.2) / 2.2
	if agg.RGB[0] <= plain {
		t.Errorf("Expected aggregate lighter than a plain weighted mean %.2f, got %.2f", plain, agg.RGB[0])
	}
}

func TestAggregate_VeryDarkReaveragesConsistentSamples(t *testing.T) {
	ca := NewColorAggregator(DefaultOptions().Aggregation)
	samples := []RegionSample{
		{Name: "shadowed", RGB: RGB{20, 20, 20}, Weight: 1},
		{Name: "lit", RGB: RGB{120, 120, 120}, Weight: 0.2},
	}

	agg := ca.Aggregate(nil, samples)
	if agg.Class != ToneVeryDark {
		t.Fatalf("Expected very dark class, got %s", agg.Class)
	}
	if agg.Method != MethodReaveraged {
		t.Errorf("Expected re-average, got %s", agg.Method)
	}
	if agg.RGB != (RGB{20, 20, 20}) {
		t.Errorf("Expected only the consistent sample, got %v", agg.RGB)
	}
}

func TestAggregate_VeryDarkBlendsMoreEvenly(t *testing.T) {
	opts := DefaultOptions().Aggregation
	if opts.VeryDarkPower != 0.5 || opts.VeryDarkPower >= opts.NormalPower {
		t.Fatalf("Expected a flatter very dark power than normal, got %f vs %f", opts.VeryDarkPower, opts.NormalPower)
	}

	ca := NewColorAggregator(opts)
	samples := []RegionSample{
		{Name: "a", RGB: RGB{30, 30, 30}, Weight: 1},
		{Name: "b", RGB: RGB{60, 60, 60}, Weight: 1},
	}

	agg := ca.Aggregate(nil, samples)
	if agg.Class != ToneVeryDark || agg.Method != MethodWeighted {
		t.Fatalf("Expected weighted very dark aggregate, got %+v", agg)
	}
	// Plain mean is 45, linear brightness weighting gives 50
	if agg.RGB[0] <= 45 || agg.RGB[0] >= 50 {
		t.Errorf("Expected a blend between the plain and linear means, got %f", agg.RGB[0])
	}
}

func TestWeightedMean(t *testing.T) {
	samples := []RegionSample{{RGB: RGB{100, 50, 0}}, {RGB: RGB{200, 150, 100}}}

	if got := weightedMean(samples, []float64{3, 1}); got != (RGB{125, 75, 25}) {
		t.Errorf("Expected weighted mean (125,75,25), got %v", got)
	}
	if got := weightedMean(samples, []float64{0, 0}); got != (RGB{150, 100, 50}) {
		t.Errorf("Expected plain mean when every weight is zero, got %v", got)
	}
	if got := meanRGB(nil); got != (RGB{}) {
		t.Errorf("Expected zero colour for no pixels, got %v", got)
	}
}
