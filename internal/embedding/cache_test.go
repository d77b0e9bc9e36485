package embedding

import (
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a.jpg"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a.jpg", []float32{1, 2, 3})
	v, ok := c.Get("a.jpg")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b.jpg", []float32{4, 5})
	c.Get("a.jpg")                // a is now most recent
	c.Set("c.jpg", []float32{6}) // evicts b
	if _, ok := c.Get("b.jpg"); ok {
		t.Error("expected b.jpg to be evicted")
	}
	if _, ok := c.Get("a.jpg"); !ok {
		t.Error("expected a.jpg to remain")
	}
	if _, ok := c.Get("c.jpg"); !ok {
		t.Error("expected c.jpg to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len: got %d", c.Len())
	}
}

func TestEmbeddingCache_ReturnsCopies(t *testing.T) {
	c := NewEmbeddingCache(1)
	in := []float32{1, 2}
	c.Set("k", in)
	in[0] = 9
	out, _ := c.Get("k")
	if out[0] != 1 {
		t.Fatalf("cache aliased caller slice: %v", out)
	}
	out[1] = 9
	again, _ := c.Get("k")
	if again[1] != 2 {
		t.Fatalf("cache aliased returned slice: %v", again)
	}
}

func TestEmbeddingCache_Disabled(t *testing.T) {
	c := NewEmbeddingCache(0)
	c.Set("k", []float32{1})
	if _, ok := c.Get("k"); ok {
		t.Fatal("zero-capacity cache should not store")
	}
}
