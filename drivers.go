package kcasbin

// Store providers registered for NewAdapter.
import (
	_ "github.com/getkayan/kcasbin/kgorm"
	_ "github.com/getkayan/kcasbin/kredis"
)
