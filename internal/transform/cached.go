package transform

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
)

// Store is the persistence a cached step reads and writes.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

type cachedOutput struct {
	Rel      string `json:"rel"`
	Contents []byte `json:"contents"`
}

type cached struct {
	inner FileStep
	store Store
}

// Cached memoizes inner by step fingerprint and input content. Cache
// failures are logged and fall back to running inner.
func Cached(inner FileStep, store Store) FileStep {
	if store == nil {
		return inner
	}
	return &cached{inner: inner, store: store}
}

func (c *cached) Name() string        { return c.inner.Name() }
func (c *cached) Fingerprint() string { return c.inner.Fingerprint() }

func (c *cached) Apply(ctx context.Context, files []*asset.File) ([]*asset.File, error) {
	return applyEach(ctx, c, files)
}

func (c *cached) ApplyFile(ctx context.Context, f *asset.File) ([]*asset.File, error) {
	key := cacheKey(c.inner.Fingerprint(), f)
	if raw, ok, err := c.store.Get(ctx, key); err != nil {
		slog.Warn("Transform cache read failed", logfields.Step(c.Name()), logfields.File(f.Source), logfields.Error(err))
	} else if ok {
		var outs []cachedOutput
		if err := json.Unmarshal(raw, &outs); err == nil {
			return restore(f, outs), nil
		}
	}

	res, err := c.inner.ApplyFile(ctx, f)
	if err != nil {
		return nil, err
	}
	outs := make([]cachedOutput, len(res))
	for i, r := range res {
		outs[i] = cachedOutput{Rel: r.Rel, Contents: r.Contents}
	}
	raw, err := json.Marshal(outs)
	if err == nil {
		err = c.store.Put(ctx, key, raw)
	}
	if err != nil {
		slog.Warn("Transform cache write failed", logfields.Step(c.Name()), logfields.File(f.Source), logfields.Error(err))
	}
	return res, nil
}

func restore(f *asset.File, outs []cachedOutput) []*asset.File {
	res := make([]*asset.File, len(outs))
	for i, o := range outs {
		r := *f
		r.Rel = o.Rel
		r.Contents = o.Contents
		res[i] = &r
	}
	return res
}

func cacheKey(fingerprint string, f *asset.File) string {
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(f.Rel))
	h.Write([]byte{0})
	h.Write(f.Contents)
	return hex.EncodeToString(h.Sum(nil))
}
