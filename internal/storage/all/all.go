// Package all registers every state backend.
package all

import (
	_ "csvtap/internal/storage/file"
	_ "csvtap/internal/storage/mssql"
	_ "csvtap/internal/storage/postgres"
	_ "csvtap/internal/storage/sqlite"
)
