package digest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KaramelBytes/docsync/internal/source"
)

type memSource map[string]string

func (m memSource) Fetch(_ context.Context, id string) (source.Document, error) {
	text, ok := m[id]
	if !ok {
		return source.Document{}, fmt.Errorf("%w: %s not found", source.ErrRetrieval, id)
	}
	return source.Document{ID: id, Text: text}, nil
}

type memCache struct {
	mu   sync.Mutex
	m    map[string]DocumentDigest
	puts int
}

func (c *memCache) Get(key string) (DocumentDigest, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.m[key]
	return d, ok, nil
}

func (c *memCache) Put(key string, d DocumentDigest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = map[string]DocumentDigest{}
	}
	c.m[key] = d
	c.puts++
	return nil
}

// echoLLM answers each window with a highlight naming the window's first line.
func echoLLM(delay func(input string) time.Duration, calls *int32) CompleterFunc {
	return func(_ context.Context, _, input string, _ float64) (string, error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		if delay != nil {
			time.Sleep(delay(input))
		}
		body := input[strings.Index(input, "\n\n")+2:]
		return fmt.Sprintf(`{"highlights":[%q]}`, body), nil
	}
}

func testPipeline(src Source, llm Completer, opts Options) *Pipeline {
	return &Pipeline{
		Source:     src,
		Summarizer: NewSummarizer(llm, 0, nil),
		Reducer:    NewReducer(nil, 0, false, nil),
		Options:    opts,
	}
}

func TestRunPreservesWindowOrderUnderConcurrency(t *testing.T) {
	text := "aaaa" + "bbbb" + "cccc" + "dddd" + "eeee"
	// later windows answer first
	delay := func(input string) time.Duration {
		return time.Duration(len(input)%7+strings.Count(input, "a")*5) * time.Millisecond
	}
	opts := Options{WindowSize: 4, WindowOverlap: 0, MaxWindows: 100, BundleMaxBytes: 100000, Concurrency: 4}
	b, rep, err := testPipeline(memSource{"doc": text}, echoLLM(delay, nil), opts).Run(context.Background(), []string{"doc"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"aaaa", "bbbb", "cccc", "dddd", "eeee"}
	got := b.Documents[0].Highlights
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("highlights = %v", got)
	}
	if rep.Documents[0].Windows != 5 {
		t.Fatalf("report = %+v", rep.Documents[0])
	}
}

func TestRunAbortsOnFetchError(t *testing.T) {
	var calls int32
	p := testPipeline(memSource{"a": "text"}, echoLLM(nil, &calls), DefaultOptions())
	_, _, err := p.Run(context.Background(), []string{"missing", "a"})
	if !errors.Is(err, source.ErrRetrieval) {
		t.Fatalf("expected ErrRetrieval, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("no document should be summarized after an abort, got %d calls", calls)
	}
}

func TestRunSkipsFailedFetchWhenConfigured(t *testing.T) {
	opts := DefaultOptions()
	opts.SkipFailedFetch = true
	b, rep, err := testPipeline(memSource{"a": "text"}, echoLLM(nil, nil), opts).Run(context.Background(), []string{"missing", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Documents) != 1 || b.Documents[0].DocID != "a" {
		t.Fatalf("bundle = %+v", b.Documents)
	}
	if len(rep.Documents) != 2 || rep.Documents[0].Err == "" {
		t.Fatalf("report = %+v", rep.Documents)
	}
}

func TestRunRecordsDegradedWindows(t *testing.T) {
	var n int32
	llm := CompleterFunc(func(context.Context, string, string, float64) (string, error) {
		if atomic.AddInt32(&n, 1) == 2 {
			return "not json", nil
		}
		return `{"highlights":["ok"]}`, nil
	})
	opts := Options{WindowSize: 3, MaxWindows: 10, BundleMaxBytes: 100000, Concurrency: 1}
	_, rep, err := testPipeline(memSource{"d": "abcdefghi"}, llm, opts).Run(context.Background(), []string{"d"})
	if err != nil {
		t.Fatal(err)
	}
	dr := rep.Documents[0]
	if len(dr.DegradedWindows) != 1 || dr.DegradedWindows[0] != 1 || dr.Degraded {
		t.Fatalf("report = %+v", dr)
	}
	if rep.Degradations() != 1 {
		t.Fatalf("degradations = %d", rep.Degradations())
	}
}

func TestRunUsesCache(t *testing.T) {
	var calls int32
	cache := &memCache{}
	opts := DefaultOptions()
	p := testPipeline(memSource{"a": "same text"}, echoLLM(nil, &calls), opts)
	p.Cache = cache

	if _, _, err := p.Run(context.Background(), []string{"a"}); err != nil {
		t.Fatal(err)
	}
	first := atomic.LoadInt32(&calls)
	_, rep, err := p.Run(context.Background(), []string{"a"})
	if err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != first {
		t.Fatal("cached document was summarized again")
	}
	if !rep.Documents[0].Cached || cache.puts != 1 {
		t.Fatalf("cached=%v puts=%d", rep.Documents[0].Cached, cache.puts)
	}
}

func TestRunDoesNotCacheDegraded(t *testing.T) {
	cache := &memCache{}
	p := testPipeline(memSource{"a": "x"}, reply("garbage"), DefaultOptions())
	p.Cache = cache
	if _, _, err := p.Run(context.Background(), []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if cache.puts != 0 {
		t.Fatalf("degraded digest was cached")
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := testPipeline(memSource{"a": "x"}, reply("{}"), DefaultOptions()).Run(ctx, []string{"a"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCacheKeyDependsOnSettings(t *testing.T) {
	o := DefaultOptions()
	k1 := CacheKey("text", o)
	o.Model = "other"
	if CacheKey("text", o) == k1 {
		t.Fatal("model change should change the key")
	}
	if CacheKey("text2", DefaultOptions()) == k1 {
		t.Fatal("text change should change the key")
	}
	if CacheKey("text", DefaultOptions()) != k1 {
		t.Fatal("key is not deterministic")
	}
}

func TestRunCacheHitKeepsOwnPlaceholderTitle(t *testing.T) {
	var calls int32
	p := testPipeline(memSource{"a": "same text", "b": "same text"}, echoLLM(nil, &calls), DefaultOptions())
	p.Cache = &memCache{}

	b, rep, err := p.Run(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Documents[1].Cached || calls != 1 {
		t.Fatalf("second document should come from the cache: cached=%v calls=%d", rep.Documents[1].Cached, calls)
	}
	got := b.Documents[1]
	if got.DocID != "b" || got.Title != PlaceholderTitle("b") {
		t.Fatalf("docId=%s title=%q", got.DocID, got.Title)
	}
	if b.Documents[0].Title != PlaceholderTitle("a") {
		t.Fatalf("first title = %q", b.Documents[0].Title)
	}
}

func TestRunCacheHitKeepsDerivedTitle(t *testing.T) {
	llm := reply(`{"highlights":["h"],"entities":["Title: Billing"]}`)
	p := testPipeline(memSource{"a": "same text", "b": "same text"}, llm, DefaultOptions())
	p.Cache = &memCache{}
	b, _, err := p.Run(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if b.Documents[1].Title != "Billing" {
		t.Fatalf("title = %q", b.Documents[1].Title)
	}
}

func TestRunWarnsWhenCapCutsDocument(t *testing.T) {
	for _, maxWindows := range []int{0, 2} {
		var buf bytes.Buffer
		opts := Options{WindowSize: 2, MaxWindows: maxWindows, BundleMaxBytes: 100000, Concurrency: 1}
		p := testPipeline(memSource{"d": "abcdefgh"}, echoLLM(nil, nil), opts)
		p.Logger = slog.New(slog.NewTextHandler(&buf, nil))
		if _, _, err := p.Run(context.Background(), []string{"d"}); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "window cap reached") {
			t.Fatalf("max_windows=%d: no cap warning in %q", maxWindows, buf.String())
		}
	}
	var buf bytes.Buffer
	p := testPipeline(memSource{"d": "abcd"}, echoLLM(nil, nil), Options{WindowSize: 2, MaxWindows: 2, BundleMaxBytes: 100000, Concurrency: 1})
	p.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	if _, _, err := p.Run(context.Background(), []string{"d"}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "window cap reached") {
		t.Fatal("fully covered document should not warn")
	}
}
