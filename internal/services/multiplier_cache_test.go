package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

type stubRedisClient struct {
	redis.Cmdable
	mgetFn func(ctx context.Context, keys ...string) *redis.SliceCmd
	pipe   *stubPipeliner
}

func (s *stubRedisClient) MGet(ctx context.Context, keys ...string) *redis.SliceCmd {
	return s.mgetFn(ctx, keys...)
}

func (s *stubRedisClient) Pipeline() redis.Pipeliner {
	return s.pipe
}

type stubPipeliner struct {
	redis.Pipeliner
	sets map[string]string
	ttls map[string]time.Duration
}

func newStubPipeliner() *stubPipeliner {
	return &stubPipeliner{
		sets: map[string]string{},
		ttls: map[string]time.Duration{},
	}
}

func (p *stubPipeliner) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	p.sets[key] = value.(string)
	p.ttls[key] = expiration
	return redis.NewStatusCmd(ctx)
}

func (p *stubPipeliner) Exec(ctx context.Context) ([]redis.Cmder, error) {
	return nil, nil
}

func sliceResult(ctx context.Context, values ...interface{}) *redis.SliceCmd {
	cmd := redis.NewSliceCmd(ctx)
	cmd.SetVal(values)
	return cmd
}

func TestCachedMultiplierSourceWithoutClientReturnsSource(t *testing.T) {
	source := &stubMultiplierSource{getFn: func(context.Context, []string) (map[string]float64, error) {
		return map[string]float64{"S": 1.2}, nil
	}}

	wrapped, err := NewCachedMultiplierSource(CachedMultiplierSourceDeps{Source: source})
	if err != nil {
		t.Fatalf("NewCachedMultiplierSource: %v", err)
	}
	if wrapped != MultiplierSource(source) {
		t.Fatalf("expected the source to pass through untouched when redis is absent")
	}
}

func TestCachedMultiplierSourceServesFromCache(t *testing.T) {
	source := &stubMultiplierSource{getFn: func(context.Context, []string) (map[string]float64, error) {
		t.Fatal("source must not be queried on a full cache hit")
		return nil, nil
	}}
	client := &stubRedisClient{
		mgetFn: func(ctx context.Context, keys ...string) *redis.SliceCmd {
			if len(keys) != 2 || keys[0] != "pricing:multiplier:S" || keys[1] != "pricing:multiplier:L" {
				t.Fatalf("unexpected cache keys %v", keys)
			}
			return sliceResult(ctx, "1.1", "1.25")
		},
		pipe: newStubPipeliner(),
	}

	cached, err := NewCachedMultiplierSource(CachedMultiplierSourceDeps{Source: source, Client: client})
	if err != nil {
		t.Fatalf("NewCachedMultiplierSource: %v", err)
	}

	result, err := cached.GetMultipliers(context.Background(), []string{"S", "L"})
	if err != nil {
		t.Fatalf("GetMultipliers: %v", err)
	}
	if result["S"] != 1.1 || result["L"] != 1.25 {
		t.Errorf("unexpected result %v", result)
	}
	if len(client.pipe.sets) != 0 {
		t.Errorf("expected no cache writes on a full hit, got %v", client.pipe.sets)
	}
}

func TestCachedMultiplierSourceReadsThroughMisses(t *testing.T) {
	var sourceLabels []string
	source := &stubMultiplierSource{getFn: func(_ context.Context, labels []string) (map[string]float64, error) {
		sourceLabels = labels
		return map[string]float64{"L": 1.25}, nil
	}}
	client := &stubRedisClient{
		mgetFn: func(ctx context.Context, keys ...string) *redis.SliceCmd {
			return sliceResult(ctx, "1.1", nil, nil)
		},
		pipe: newStubPipeliner(),
	}

	cached, err := NewCachedMultiplierSource(CachedMultiplierSourceDeps{
		Source: source,
		Client: client,
		TTL:    90 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewCachedMultiplierSource: %v", err)
	}

	result, err := cached.GetMultipliers(context.Background(), []string{"S", "L", "XL"})
	if err != nil {
		t.Fatalf("GetMultipliers: %v", err)
	}

	if result["S"] != 1.1 || result["L"] != 1.25 {
		t.Errorf("unexpected result %v", result)
	}
	// XL is unknown to the source: absent from the result and never cached.
	if _, ok := result["XL"]; ok {
		t.Errorf("unexpected XL entry in %v", result)
	}
	if len(sourceLabels) != 2 || sourceLabels[0] != "L" || sourceLabels[1] != "XL" {
		t.Errorf("expected source query for misses only, got %v", sourceLabels)
	}
	if client.pipe.sets["pricing:multiplier:L"] != "1.25" {
		t.Errorf("expected L to be cached, got %v", client.pipe.sets)
	}
	if client.pipe.ttls["pricing:multiplier:L"] != 90*time.Second {
		t.Errorf("unexpected ttl %v", client.pipe.ttls)
	}
	if _, ok := client.pipe.sets["pricing:multiplier:XL"]; ok {
		t.Errorf("unknown labels must not be negatively cached: %v", client.pipe.sets)
	}
}

func TestCachedMultiplierSourceDegradesOnCacheFailure(t *testing.T) {
	var sourceLabels []string
	source := &stubMultiplierSource{getFn: func(_ context.Context, labels []string) (map[string]float64, error) {
		sourceLabels = labels
		return map[string]float64{"S": 1.1}, nil
	}}
	var logged []string
	client := &stubRedisClient{
		mgetFn: func(ctx context.Context, keys ...string) *redis.SliceCmd {
			cmd := redis.NewSliceCmd(ctx)
			cmd.SetErr(errors.New("connection refused"))
			return cmd
		},
		pipe: newStubPipeliner(),
	}

	cached, err := NewCachedMultiplierSource(CachedMultiplierSourceDeps{
		Source: source,
		Client: client,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})
	if err != nil {
		t.Fatalf("NewCachedMultiplierSource: %v", err)
	}

	result, err := cached.GetMultipliers(context.Background(), []string{"S"})
	if err != nil {
		t.Fatalf("GetMultipliers: %v", err)
	}
	if result["S"] != 1.1 {
		t.Errorf("unexpected result %v", result)
	}
	if len(sourceLabels) != 1 || sourceLabels[0] != "S" {
		t.Errorf("expected full source fallback, got %v", sourceLabels)
	}
	found := false
	for _, event := range logged {
		if event == "pricing.multiplier.cache.read_failed" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected cache read failure log, got %v", logged)
	}
}

func TestCachedMultiplierSourcePropagatesSourceError(t *testing.T) {
	wantErr := errors.New("catalog down")
	source := &stubMultiplierSource{getFn: func(context.Context, []string) (map[string]float64, error) {
		return nil, wantErr
	}}
	client := &stubRedisClient{
		mgetFn: func(ctx context.Context, keys ...string) *redis.SliceCmd {
			return sliceResult(ctx, nil)
		},
		pipe: newStubPipeliner(),
	}

	cached, err := NewCachedMultiplierSource(CachedMultiplierSourceDeps{Source: source, Client: client})
	if err != nil {
		t.Fatalf("NewCachedMultiplierSource: %v", err)
	}

	if _, err := cached.GetMultipliers(context.Background(), []string{"S"}); !errors.Is(err, wantErr) {
		t.Errorf("expected source error, got %v", err)
	}
}
