package feed

import "embed"

// Offline snapshots used when a feed cannot be fetched and no on-disk
// fallback is configured.
//
//go:embed bundled/packages.csv bundled/packages.json
var bundled embed.FS
