package database

import (
	"database/sql"
	"net/url"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/trezcool/tallman/core"
	appfs "github.com/trezcool/tallman/fs"
)

// maintenanceDB is the database both connections of CreateIfNotExist land on.
const maintenanceDB = "postgres"

// dsn builds the connection URL for `dbName`, as the admin role when `admin` is set and one is configured.
func dsn(dc core.DatabaseConfig, dbName string, admin bool) string {
	usr := url.UserPassword(dc.User, dc.Password)
	if admin && dc.AdminUser != "" {
		usr = url.UserPassword(dc.AdminUser, dc.AdminPassword)
	}

	q := make(url.Values)
	q.Set("sslmode", "require")
	if dc.DisableTLS {
		q.Set("sslmode", "disable")
	}
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   dc.Engine,
		User:     usr,
		Host:     dc.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Open connects to the application database as the application role.
func Open(conf *core.Config) (*sql.DB, error) {
	return sql.Open(conf.Database.Engine, dsn(conf.Database, conf.Database.Name, false))
}

type pinger interface {
	Ping() error
}

// ping waits for the database to accept connections, pausing one interval longer after each failed attempt.
func ping(db pinger, dc core.DatabaseConfig) error {
	attempts := dc.PingAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for n := 1; n <= attempts; n++ {
		if err = db.Ping(); err == nil {
			return nil
		}
		if n < attempts {
			time.Sleep(time.Duration(n) * dc.PingInterval)
		}
	}
	return errors.Wrapf(err, "database not ready after %d attempts", attempts)
}

// exists runs a `SELECT true ... WHERE x = $1` style query and reports whether it matched.
func exists(db *sql.DB, query string, arg string) (bool, error) {
	var found bool
	err := db.QueryRow(query, arg).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return found, err
}

func createAppUser(db *sql.DB, dc core.DatabaseConfig) error {
	if dc.User == "" {
		return nil
	}
	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = $1", dc.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if found {
		return nil
	}
	q := "CREATE USER " + pq.QuoteIdentifier(dc.User) + " CREATEDB ENCRYPTED PASSWORD " + pq.QuoteLiteral(dc.Password)
	_, err = db.Exec(q)
	return errors.Wrap(err, "creating app user")
}

func createDB(db *sql.DB, dc core.DatabaseConfig) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = $1", dc.Name)
	if err != nil {
		return errors.Wrap(err, "checking database")
	}
	if found {
		return nil
	}
	_, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dc.Name))
	return errors.Wrap(err, "creating database")
}

// CreateIfNotExist makes sure the application role and database exist. The role is created
// by the admin, the database by the application role so that it owns it.
func CreateIfNotExist(conf *core.Config) error {
	dc := conf.Database

	adminDB, err := sql.Open(dc.Engine, dsn(dc, maintenanceDB, true))
	if err != nil {
		return errors.Wrap(err, "opening database as admin")
	}
	defer func() { _ = adminDB.Close() }()

	if err = ping(adminDB, dc); err != nil {
		return err
	}
	if err = createAppUser(adminDB, dc); err != nil {
		return err
	}

	appDB, err := sql.Open(dc.Engine, dsn(dc, maintenanceDB, false))
	if err != nil {
		return errors.Wrap(err, "opening database as app user")
	}
	defer func() { _ = appDB.Close() }()

	return createDB(appDB, dc)
}

func Migrate(db *sql.DB) error {
	if err := goose.RunFS("up", db, appfs.FS, "migrations"); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
