package embeddings

import (
	"context"
	"math"
	"testing"
)

func TestLocalProviderDeterministic(t *testing.T) {
	p := NewLocalProvider(LocalConfig{Dimensions: 128})

	a, err := p.Embed(context.Background(), "tiered memory")
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Embed(context.Background(), "tiered memory")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 128 {
		t.Fatalf("len = %d, expected 128", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("dimension %d differs between identical inputs", i)
		}
	}

	c, err := p.Embed(context.Background(), "something else")
	if err != nil {
		t.Fatal(err)
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct inputs produced identical embeddings")
	}
}

func TestLocalProviderNormalized(t *testing.T) {
	p := NewLocalProvider(LocalConfig{Dimensions: 64})
	vec, err := p.Embed(context.Background(), "normalize me")
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
		t.Errorf("L2 norm = %f, expected 1", math.Sqrt(sum))
	}
}

func TestLocalProviderRejectsEmptyInput(t *testing.T) {
	p := NewLocalProvider(DefaultLocalConfig())
	if _, err := p.Embed(context.Background(), ""); err != ErrEmptyInput {
		t.Fatalf("err = %v, expected ErrEmptyInput", err)
	}
}

func TestLocalProviderClosed(t *testing.T) {
	p := NewLocalProvider(DefaultLocalConfig())
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Embed(context.Background(), "text"); err != ErrProviderClosed {
		t.Fatalf("err = %v, expected ErrProviderClosed", err)
	}
}

func TestCachedProviderHitSkipsInner(t *testing.T) {
	mock := NewMockProvider(32)
	cached, err := NewCachedProvider(mock, DefaultCacheConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer cached.Close()

	first, err := cached.Embed(context.Background(), "repeated query")
	if err != nil {
		t.Fatal(err)
	}
	cached.Wait()

	second, err := cached.Embed(context.Background(), "repeated query")
	if err != nil {
		t.Fatal(err)
	}
	if mock.Calls() != 1 {
		t.Errorf("inner calls = %d, expected 1 (second lookup cached)", mock.Calls())
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached embedding differs at dimension %d", i)
		}
	}
	if hits, _ := cached.Stats(); hits != 1 {
		t.Errorf("hits = %d, expected 1", hits)
	}
}

func TestCachedProviderPropagatesFailure(t *testing.T) {
	mock := NewMockProvider(32)
	mock.FailWith(ErrEmptyInput)
	cached, err := NewCachedProvider(mock, DefaultCacheConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer cached.Close()

	if _, err := cached.Embed(context.Background(), "text"); err != ErrEmptyInput {
		t.Fatalf("err = %v, expected inner failure surfaced", err)
	}
}
