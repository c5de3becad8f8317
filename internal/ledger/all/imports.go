// Package all enables every built-in ledger engine. Import it for side
// effects only:
//
//	import _ "csvsift/internal/ledger/all"
package all

import (
	_ "csvsift/internal/ledger/mssql"
	_ "csvsift/internal/ledger/mysql"
	_ "csvsift/internal/ledger/postgres"
	_ "csvsift/internal/ledger/sqlite"
)
