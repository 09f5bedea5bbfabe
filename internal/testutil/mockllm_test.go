package testutil

import (
	"context"
	"math"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

func TestMockLLMPatternMatching(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)

	mock := NewMockLLM("fallback response")
	mock.AddResponse("login", "plan for login")
	mock.AddResponse("search", "plan for search")
	model := mock.RegisterModel(g)

	resp, err := genkit.Generate(ctx, g,
		ai.WithModel(model),
		ai.WithPrompt("improve the LOGIN flow"),
	)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := resp.Text(); got != "plan for login" {
		t.Errorf("response = %q, want pattern match", got)
	}

	resp, err = genkit.Generate(ctx, g,
		ai.WithModel(model),
		ai.WithPrompt("something unrelated"),
	)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := resp.Text(); got != "fallback response" {
		t.Errorf("response = %q, want fallback", got)
	}

	if calls := mock.Calls(); len(calls) != 2 {
		t.Errorf("recorded %d calls, want 2", len(calls))
	}
}

func TestMockEmbedderDeterminism(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)

	mock := NewMockEmbedder(8)
	embedder := mock.RegisterEmbedder(g)

	embed := func(text string) []float32 {
		t.Helper()
		resp, err := embedder.Embed(ctx, &ai.EmbedRequest{
			Input: []*ai.Document{ai.DocumentFromText(text, nil)},
		})
		if err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
		return resp.Embeddings[0].Embedding
	}

	a := embed("def f(): pass")
	b := embed("def f(): pass")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same content produced different vectors")
		}
	}

	c := embed("# notes")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different content produced identical vectors")
	}

	// Vectors are unit-normalized.
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-5 {
		t.Errorf("vector norm = %v, want 1", math.Sqrt(norm))
	}
}

func TestMockEmbedderExplicitVector(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)

	mock := NewMockEmbedder(3)
	mock.SetVector("pinned", []float32{1, 0, 0})
	embedder := mock.RegisterEmbedder(g)

	resp, err := embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText("pinned", nil)},
	})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	got := resp.Embeddings[0].Embedding
	if got[0] != 1 || got[1] != 0 || got[2] != 0 {
		t.Errorf("vector = %v, want [1 0 0]", got)
	}
}
