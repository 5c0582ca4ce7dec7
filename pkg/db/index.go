package db

import "gorm.io/gorm"

// Factory maps a DBType to the dialector that opens its DSN.
var Factory = map[string]func(string) gorm.Dialector{}
