package util

import "testing"

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()
	if s := h.Summary(); s.Count != 0 || s.Median != 0 {
		t.Errorf("Empty histogram should have a zero summary, got %+v", s)
	}

	for i := 0; i < 99; i++ {
		h.AddSample(100)
	}
	h.AddSample(5000)

	s := h.Summary()
	if s.Count != 100 {
		t.Errorf("Expected 100 samples, got %d", s.Count)
	}
	if s.Max != 5000 {
		t.Errorf("Expected max 5000, got %d", s.Max)
	}
	if s.Average != (99*100+5000)/100 {
		t.Errorf("Unexpected average %d", s.Average)
	}
	// 100 falls into the (64, 256] bucket
	if s.Median != (64+256)/2 {
		t.Errorf("Expected median estimate %d, got %d", (64+256)/2, s.Median)
	}
	if p := h.Percentile(100); p != (4096+16384)/2 {
		t.Errorf("Expected p100 estimate %d, got %d", (4096+16384)/2, p)
	}

	h.Reset()
	if h.Count() != 0 {
		t.Errorf("Reset should clear all samples")
	}
}
