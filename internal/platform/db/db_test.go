package db

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"parc-backend/internal/platform/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db.local", Port: 3306, Username: "parc", Password: "s3cr:t@", DBName: "lagom"})

	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("ParseDSN(%q): %v", dsn, err)
	}
	if mc.Addr != "db.local:3306" || mc.DBName != "lagom" || mc.User != "parc" || mc.Passwd != "s3cr:t@" {
		t.Errorf("parsed = %+v", mc)
	}
	if !mc.ParseTime || mc.Loc != time.UTC {
		t.Errorf("ParseTime = %v, Loc = %v", mc.ParseTime, mc.Loc)
	}
	// status rewrites to the stored value must still count as one row
	if !mc.ClientFoundRows {
		t.Error("ClientFoundRows is off")
	}
}
