// Package all links every storage backend into a binary with a single blank
// import. Commands import this instead of listing backends individually.
package all

import (
	_ "datasync/internal/storage/mssql"
	_ "datasync/internal/storage/postgres"
	_ "datasync/internal/storage/sqlite"
)
