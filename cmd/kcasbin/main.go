// Command kcasbin manages casbin policies stored by the kcasbin adapter.
//
// The store is selected through the same environment variables the adapter
// reads (DB_TYPE, DSN, TABLE_NAME, ...):
//
//	DB_TYPE=postgres DSN="host=localhost user=casbin dbname=casbin" kcasbin import policy.csv
//	kcasbin export
//	kcasbin add p alice data1 read
//	kcasbin remove-filtered p 0 alice
//	kcasbin serve
package main

import "os"

func main() {
	os.Exit(execute())
}
