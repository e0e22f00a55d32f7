package internal

import (
	// Blank imports register the database/sql drivers used by the SQL and
	// jobqueue publishers.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)
