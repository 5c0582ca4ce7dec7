package config

type DB struct {
	DBType string `default:"sqlite" desc:"database driver" yaml:"dbtype"`
	DSN    string `default:"isobmff.db" desc:"data source name" yaml:"dsn"`
}
