package auth

import (
	"embed"
	"io/fs"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

//go:embed data/views
var viewsFS embed.FS

//go:embed data/common-passwords.txt
var commonPasswords []byte

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// GetViewsFS returns the HTML templates rooted at the views directory
func GetViewsFS() fs.FS {
	sub, err := fs.Sub(viewsFS, "data/views")
	if err != nil {
		panic(err)
	}
	return sub
}
