package appfs

import "embed"

// FS holds the SQL migrations and the email/password assets shipped with the binaries.
//go:embed migrations/*.sql assets/templates/email/* assets/*.txt assets/*.json assets/*.tmpl
var FS embed.FS
