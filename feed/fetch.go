package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// MaxDownloadBytes caps a single feed payload.
	MaxDownloadBytes = 10 << 20
	// DefaultFetchTimeout bounds one source's network fetch, retries included.
	DefaultFetchTimeout = 15 * time.Second
)

var (
	ErrInsecureURL = errors.New("feed URL must use https")
	ErrRedirect    = errors.New("feed server answered with a redirect")
	ErrTooLarge    = errors.New("feed payload exceeds size limit")
	ErrNoFallback  = errors.New("no fallback dataset available")
)

// Format identifies which parser a source's payload needs.
type Format int

const (
	FormatDelimited Format = iota
	FormatStructured
)

func (f Format) String() string {
	if f == FormatStructured {
		return "structured"
	}
	return "delimited"
}

// Origin records where a source's payload came from.
type Origin string

const (
	OriginNetwork  Origin = "network"
	OriginCache    Origin = "cache"
	OriginFallback Origin = "fallback"
	OriginFailed   Origin = "failed"
)

// Source describes one threat feed.
type Source struct {
	Name      string
	URL       string
	Format    Format
	CacheFile string
	// Fallback is an on-disk offline copy. When empty the embedded snapshot
	// named by Bundled is used instead.
	Fallback string
	Bundled  string
}

// Fetcher retrieves feed payloads following the cache, network, fallback
// order.
type Fetcher struct {
	Cache    *Cache
	NoCache  bool
	Timeout  time.Duration
	MaxBytes int64
	Retries  uint64

	client *http.Client
}

// NewFetcher returns a Fetcher using a copy of client that never follows
// redirects. A nil client selects http.DefaultClient.
func NewFetcher(client *http.Client, cache *Cache) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Fetcher{
		Cache:    cache,
		Timeout:  DefaultFetchTimeout,
		MaxBytes: MaxDownloadBytes,
		Retries:  2,
		client:   &c,
	}
}

// Fetch returns the raw payload for src and where it came from. An error is
// returned only when no fallback exists either.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]byte, Origin, error) {
	if !f.NoCache && f.Cache != nil && src.CacheFile != "" {
		if data, ok := f.Cache.Load(src.CacheFile); ok {
			log.Debugf("feed %s: using cached copy %s", src.Name, src.CacheFile)
			return data, OriginCache, nil
		}
	}

	var fetchErr error
	if src.URL != "" {
		data, err := f.download(ctx, src.URL)
		if err == nil {
			if f.Cache != nil && src.CacheFile != "" {
				if err := f.Cache.Store(src.CacheFile, data); err != nil {
					log.Warnf("feed %s: failed to cache payload: %v", src.Name, err)
				}
			}
			return data, OriginNetwork, nil
		}
		fetchErr = err
		log.Warnf("feed %s: fetch failed, trying fallback: %v", src.Name, err)
	} else {
		log.Debugf("feed %s: no URL configured, using fallback", src.Name)
	}

	data, err := f.fallback(src)
	if err != nil {
		if fetchErr != nil {
			return nil, OriginFailed, errors.Wrapf(err, "feed %s: %v", src.Name, fetchErr)
		}
		return nil, OriginFailed, errors.Wrapf(err, "feed %s", src.Name)
	}
	return data, OriginFallback, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid feed URL %q", rawURL)
	}
	if u.Scheme != "https" {
		return nil, ErrInsecureURL
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limit := f.MaxBytes
	if limit <= 0 {
		limit = MaxDownloadBytes
	}

	op := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			return nil, backoff.Permanent(errors.Wrapf(ErrRedirect, "HTTP %d to %q", resp.StatusCode, resp.Header.Get("Location")))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, backoff.Permanent(fmt.Errorf("unexpected HTTP status %d", resp.StatusCode))
		}
		if resp.ContentLength > limit {
			return nil, backoff.Permanent(ErrTooLarge)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > limit {
			return nil, backoff.Permanent(ErrTooLarge)
		}
		return data, nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.Retries), ctx)
	return backoff.RetryWithData(op, policy)
}

func (f *Fetcher) fallback(src Source) ([]byte, error) {
	if src.Fallback != "" {
		info, err := os.Stat(src.Fallback)
		if err != nil {
			return nil, errors.Wrapf(ErrNoFallback, "%v", err)
		}
		if info.Size() > MaxDownloadBytes {
			return nil, errors.Wrapf(ErrTooLarge, "fallback %s", src.Fallback)
		}
		log.Infof("feed %s: using offline copy %s", src.Name, src.Fallback)
		return os.ReadFile(src.Fallback)
	}
	if src.Bundled != "" {
		data, err := bundled.ReadFile("bundled/" + src.Bundled)
		if err != nil {
			return nil, errors.Wrapf(ErrNoFallback, "bundled snapshot %s: %v", src.Bundled, err)
		}
		log.Infof("feed %s: using bundled snapshot %s", src.Name, src.Bundled)
		return data, nil
	}
	return nil, ErrNoFallback
}
