package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/scrapeall/embed"
	"github.com/hazyhaar/scrapeall/index"
	"github.com/hazyhaar/scrapeall/llm"
	"github.com/hazyhaar/scrapeall/store"
)

type fakeLLM struct {
	reply string
	err   error
	calls int
	last  []llm.Message
}

func (f *fakeLLM) Complete(ctx context.Context, msgs []llm.Message, o llm.Options) (llm.Completion, error) {
	f.calls++
	f.last = msgs
	if f.err != nil {
		return llm.Completion{}, f.err
	}
	return llm.Completion{Text: f.reply, Provider: "fake"}, nil
}

type fixture struct {
	store *store.Store
	index *index.Index
	llm   *fakeLLM
	eng   *Engine
}

func newFixture(t *testing.T) *fixture {
	s := store.OpenMemory(t)
	ix := index.New(s, embed.NewLocal(256))
	f := &fakeLLM{reply: "Panels use photovoltaic cells."}
	return &fixture{store: s, index: ix, llm: f, eng: New(Config{}, ix, s, f)}
}

func (fx *fixture) project(t *testing.T, name, text string) string {
	t.Helper()
	ctx := context.Background()
	p, _, err := fx.store.CreateOrGetProject(ctx, name, "https://example.com/"+name)
	require.NoError(t, err)
	if text == "" {
		return p.ID
	}
	r := &store.ScrapeResult{ProjectID: p.ID, URL: p.URL, Status: store.StatusSuccess, Summary: "s"}
	_, err = fx.store.SaveScrapeResult(ctx, r)
	require.NoError(t, err)
	_, err = fx.index.Add(ctx, p.ID, r.ID, text)
	require.NoError(t, err)
	return p.ID
}

func TestAsk_NoContent(t *testing.T) {
	// WHAT: A project with nothing indexed always gets the fixed answer.
	// WHY: Answering ungrounded invites hallucination.
	fx := newFixture(t)
	pid := fx.project(t, "empty", "")

	for _, q := range []string{"what is this?", "tell me everything", "¿hola?"} {
		ans, err := fx.eng.Ask(context.Background(), pid, q)
		require.NoError(t, err)
		assert.Equal(t, NoContentAnswer, ans.Response)
		assert.False(t, ans.Grounded)
	}
	assert.Zero(t, fx.llm.calls)

	log, err := fx.store.ListChatHistory(context.Background(), pid, 0)
	require.NoError(t, err)
	assert.Len(t, log, 6)
}

func TestAsk_GroundedAndLogged(t *testing.T) {
	fx := newFixture(t)
	pid := fx.project(t, "solar", "Solar panels convert sunlight into electricity using photovoltaic cells.")

	ans, err := fx.eng.Ask(context.Background(), pid, "How do solar panels work?")
	require.NoError(t, err)
	assert.Equal(t, "Panels use photovoltaic cells.", ans.Response)
	assert.True(t, ans.Grounded)
	assert.Equal(t, "fake", ans.Provider)
	require.NotEmpty(t, ans.Sources)

	require.Len(t, fx.llm.last, 2)
	prompt := fx.llm.last[1].Content
	assert.Contains(t, prompt, "photovoltaic cells")
	assert.Contains(t, prompt, "User question: How do solar panels work?")

	log, _ := fx.store.ListChatHistory(context.Background(), pid, 0)
	require.Len(t, log, 2)
	assert.Equal(t, store.RoleUser, log[0].Role)
	assert.Equal(t, store.RoleAssistant, log[1].Role)
}

func TestAsk_OtherEmbedderIsNoContent(t *testing.T) {
	// WHAT: chunks indexed by a previous embedder give the no-content
	// answer, not an error.
	// WHY: an empty retrieval is answered explicitly.
	fx := newFixture(t)
	pid := fx.project(t, "solar", "Solar panels convert sunlight into electricity.")

	ix := index.New(fx.store, embed.NewLocal(128))
	eng := New(Config{}, ix, fx.store, fx.llm)
	ans, err := eng.Ask(context.Background(), pid, "How do solar panels work?")
	require.NoError(t, err)
	assert.Equal(t, NoContentAnswer, ans.Response)
	assert.Zero(t, fx.llm.calls)
}

func TestAsk_UsesOnlyOwnProjectChunks(t *testing.T) {
	fx := newFixture(t)
	solar := fx.project(t, "solar", "Solar panels convert sunlight into electricity.")
	fx.project(t, "bread", "Bread dough rises with yeast before baking in the oven.")

	_, err := fx.eng.Ask(context.Background(), solar, "How long does bread dough rise?")
	require.NoError(t, err)
	assert.NotContains(t, fx.llm.last[1].Content, "yeast")
}

func TestAsk_HistoryWindow(t *testing.T) {
	fx := newFixture(t)
	pid := fx.project(t, "p", "Some indexed content about turbines.")
	ctx := context.Background()
	for i := range 8 {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		_, err := fx.store.AppendChatMessage(ctx, pid, role, fmt.Sprintf("turn-%d", i))
		require.NoError(t, err)
	}

	_, err := fx.eng.Ask(ctx, pid, "and now?")
	require.NoError(t, err)
	prompt := fx.llm.last[1].Content
	assert.NotContains(t, prompt, "turn-2")
	assert.Contains(t, prompt, "turn-3")
	assert.Contains(t, prompt, "turn-7")
}

func TestAsk_ModelFailureLeavesLogUntouched(t *testing.T) {
	fx := newFixture(t)
	pid := fx.project(t, "p", "Content about wind turbines.")
	fx.llm.err = errors.New("all providers down")

	_, err := fx.eng.Ask(context.Background(), pid, "what?")
	require.Error(t, err)
	log, _ := fx.store.ListChatHistory(context.Background(), pid, 0)
	assert.Empty(t, log)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.eng.Ask(context.Background(), "any", "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}
