// Package adapters links every external database adapter into the binary.
// Each adapter registers itself with the datasource registry from init().
package adapters

import (
	_ "github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource/sqlite"
)
