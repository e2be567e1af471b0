// Package appfs embeds the files shipped with the binaries.
package appfs

import "embed"

// FS holds the database migrations, the email templates and the assets.
//go:embed migrations all:templates assets
var FS embed.FS
