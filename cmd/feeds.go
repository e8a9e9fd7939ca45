package cmd

import (
	"context"
	"net/http"

	"github.com/spf13/viper"

	"npm-ioc-scanner/feed"
)

// configuredSources applies feeds.<name>.url and feeds.<name>.fallback
// overrides to the default sources.
func configuredSources() []feed.Source {
	sources := feed.DefaultSources()
	for i := range sources {
		key := "feeds." + sources[i].Name
		sources[i].URL = viper.GetString(key + ".url")
		sources[i].Fallback = viper.GetString(key + ".fallback")
	}
	return sources
}

func loadDenylist(ctx context.Context, noCache bool) (feed.Denylist, []feed.SourceResult) {
	cache := feed.NewCache(viper.GetString("cache-dir"), viper.GetDuration("cache-ttl"))
	f := feed.NewFetcher(&http.Client{}, cache)
	f.NoCache = noCache
	f.Timeout = durationSetting("fetch-timeout", feed.DefaultFetchTimeout)
	return feed.LoadDenylist(ctx, f, configuredSources())
}
