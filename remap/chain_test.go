package remap

import "testing"

type staticRemapper struct {
	classes map[string]string
	fields  map[string]string
	methods map[string]string
	descs   map[string]string
}

func (s *staticRemapper) MapClassName(name string) string {
	if v, ok := s.classes[name]; ok {
		return v
	}
	return name
}

func (s *staticRemapper) UnmapClassName(name string) string {
	for k, v := range s.classes {
		if v == name {
			return k
		}
	}
	return name
}

func (s *staticRemapper) MapFieldName(owner, name, desc string) string {
	if v, ok := s.fields[name]; ok {
		return v
	}
	return name
}

func (s *staticRemapper) MapMethodName(owner, name, desc string) string {
	if v, ok := s.methods[name]; ok {
		return v
	}
	return name
}

func (s *staticRemapper) MapDesc(desc string) string {
	if v, ok := s.descs[desc]; ok {
		return v
	}
	return desc
}

func (s *staticRemapper) UnmapDesc(desc string) string {
	for k, v := range s.descs {
		if v == desc {
			return k
		}
	}
	return desc
}

func TestChainFirstElementWinsEachStep(t *testing.T) {
	first := &staticRemapper{classes: map[string]string{"a/B": "a/C"}}
	second := &staticRemapper{classes: map[string]string{"a/B": "a/D", "a/C": "a/E"}}

	c := NewChain(first, second)
	got := c.MapClassName("a/B")
	if got != "a/E" {
		t.Fatalf("expected fold to feed first's output into second, got %q", got)
	}
}

func TestChainUnchangedPassesThrough(t *testing.T) {
	c := NewChain(&staticRemapper{classes: map[string]string{}})
	if got := c.MapClassName("a/B"); got != "a/B" {
		t.Fatalf("expected no-op remapper to leave name unchanged, got %q", got)
	}
}

func TestChainAddAppendsToEnd(t *testing.T) {
	c := NewChain(&staticRemapper{classes: map[string]string{"a/B": "a/C"}})
	c.Add(&staticRemapper{classes: map[string]string{"a/C": "a/D"}})

	if got := c.MapClassName("a/B"); got != "a/D" {
		t.Fatalf("expected appended remapper to further transform, got %q", got)
	}
}

func TestChainMapFieldAndMethodName(t *testing.T) {
	c := NewChain(&staticRemapper{
		fields:  map[string]string{"x": "x_"},
		methods: map[string]string{"run": "run_"},
	})
	if got := c.MapFieldName("Owner", "x", "I"); got != "x_" {
		t.Fatalf("unexpected field remap: %q", got)
	}
	if got := c.MapMethodName("Owner", "run", "()V"); got != "run_" {
		t.Fatalf("unexpected method remap: %q", got)
	}
}

func TestChainMapAndUnmapDesc(t *testing.T) {
	c := NewChain(&staticRemapper{descs: map[string]string{"La/B;": "La/C;"}})
	if got := c.MapDesc("La/B;"); got != "La/C;" {
		t.Fatalf("unexpected desc remap: %q", got)
	}
	if got := c.UnmapDesc("La/C;"); got != "La/B;" {
		t.Fatalf("unexpected desc unmap: %q", got)
	}
}

func TestChainUnmapClassName(t *testing.T) {
	c := NewChain(&staticRemapper{classes: map[string]string{"a/B": "a/C"}})
	if got := c.UnmapClassName("a/C"); got != "a/B" {
		t.Fatalf("unexpected unmap: %q", got)
	}
}
