package metrics

import "testing"

func testTree() map[string]any {
	return map[string]any{
		"system": map[string]any{
			"cpu": map[string]any{
				"loadAvg": []float64{1.5, 1.2, 0.9},
				"cores":   8,
			},
			"memory": map[string]any{
				"usedPercent": 72.5,
			},
			"uptime": float64(3600),
		},
		"flags": map[string]any{
			"healthy": true,
		},
	}
}

func TestLookupNestedPath(t *testing.T) {
	v, ok := Lookup(testTree(), "system.memory.usedPercent")
	if !ok || v != 72.5 {
		t.Fatalf("expected 72.5, got %v (ok=%v)", v, ok)
	}
}

func TestLookupArrayIndex(t *testing.T) {
	v, ok := Lookup(testTree(), "system.cpu.loadAvg.0")
	if !ok || v != 1.5 {
		t.Fatalf("expected 1.5, got %v (ok=%v)", v, ok)
	}
	v, ok = Lookup(testTree(), "system.cpu.loadAvg.2")
	if !ok || v != 0.9 {
		t.Fatalf("expected 0.9, got %v (ok=%v)", v, ok)
	}
}

func TestLookupMissingPath(t *testing.T) {
	cases := []string{
		"system.disk.usedPercent", // missing branch
		"system.cpu.loadAvg.9",    // index out of range
		"system.uptime.extra",     // traversing past a leaf
		"",                        // empty path
		"nope",
	}
	for _, path := range cases {
		if v, ok := Lookup(testTree(), path); ok {
			t.Errorf("path %q: expected not found, got %v", path, v)
		}
	}
}

func TestLookupCoercesNumericKinds(t *testing.T) {
	v, ok := Lookup(testTree(), "system.cpu.cores")
	if !ok || v != 8 {
		t.Fatalf("expected int 8 coerced to float, got %v (ok=%v)", v, ok)
	}
	v, ok = Lookup(testTree(), "flags.healthy")
	if !ok || v != 1 {
		t.Fatalf("expected true coerced to 1, got %v (ok=%v)", v, ok)
	}
}
