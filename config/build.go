package config

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/indebted-modules/cfg"
	"github.com/indebted-modules/es/v2"
	"github.com/indebted-modules/es/v2/feed"
	"github.com/indebted-modules/es/v2/migrations"
	"github.com/rs/zerolog/log"
)

// BuildPool opens every configured store and registers it in a new pool. The returned
// closer releases database connections and notifier writers.
func BuildPool(c *Config) (*es.Pool, io.Closer, error) {
	pool := es.NewPool()
	closers := &closers{}

	for _, store := range c.Stores {
		driver, err := openDriver(c, store, closers)
		if err != nil {
			_ = closers.Close()
			return nil, nil, fmt.Errorf("store '%s': %w", store.Name, err)
		}

		if store.SNSTopicARN != "" {
			driver = es.NewNotificationDriver(es.NewSNSNotifier(sns.New(cfg.Sess), store.SNSTopicARN), driver)
		}
		if len(store.KafkaBrokers) > 0 {
			notifier := es.NewKafkaNotifier(store.KafkaBrokers, store.KafkaTopic)
			closers.add(notifier)
			driver = es.NewNotificationDriver(notifier, driver)
		}
		if store.Verbose {
			driver = es.NewVerboseDriver(driver)
		}

		patterns := store.Patterns
		if len(patterns) == 0 {
			patterns = []string{es.CatchAll}
		}
		if err := pool.Register(store.Name, es.NewStore(driver), patterns...); err != nil {
			_ = closers.Close()
			return nil, nil, err
		}

		log.
			Info().
			Str("Store", store.Name).
			Str("Driver", store.Driver).
			Strs("Patterns", patterns).
			Msg("Registered event store")
	}

	return pool, closers, nil
}

func openDriver(c *Config, store StoreConfig, closers *closers) (es.Driver, error) {
	switch store.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
		db, err := OpenDB(store)
		if err != nil {
			return nil, err
		}
		closers.add(db)

		if c.Migrate {
			if err := Migrate(db, store); err != nil {
				return nil, err
			}
		}
		return newSQLDriver(db, store), nil

	case DriverStream:
		client := feed.NewClient(store.URL, store.Username, store.Password)
		if store.PageSize > 0 {
			client.PageSize = store.PageSize
		}
		driver := es.NewStreamDriver(client, store.Category)
		driver.AllStream = store.AllStream
		return driver, nil

	case DriverDynamoDB:
		driver := es.NewDynamoDriver(store.Table)
		driver.PageSize = int64(store.PageSize)
		return driver, nil

	case DriverMemory:
		return es.NewInMemoryDriver(), nil
	}
	return nil, fmt.Errorf("unknown driver '%s'", store.Driver)
}

// OpenDB opens and pings the database of a SQL store
func OpenDB(store StoreConfig) (*sql.DB, error) {
	if !store.IsSQL() {
		return nil, fmt.Errorf("driver '%s' is not a SQL driver", store.Driver)
	}

	dsn := store.DSN
	if store.Driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(store.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate creates the events table of a SQL store. Migrations only know the default
// table, so stores with another table must create theirs themselves.
func Migrate(db *sql.DB, store StoreConfig) error {
	if store.Table != "" && store.Table != es.DefaultTable {
		return fmt.Errorf("migrations only create table '%s', not '%s'", es.DefaultTable, store.Table)
	}
	return migrations.Run(db, store.Driver)
}

func newSQLDriver(db *sql.DB, store StoreConfig) *es.SQLDriver {
	switch store.Driver {
	case DriverMySQL:
		return es.NewMySQLDriver(db, store.Table)
	case DriverPostgres:
		return es.NewPostgresDriver(db, store.Table)
	default:
		return es.NewSQLiteDriver(db, store.Table)
	}
}

// sqliteDSN turns a plain file path into a DSN which waits on locks
func sqliteDSN(dsn string) string {
	if strings.HasPrefix(dsn, "file:") || dsn == ":memory:" {
		return dsn
	}
	return "file:" + dsn + "?_pragma=busy_timeout(5000)"
}

type closers struct {
	list []io.Closer
}

func (c *closers) add(closer io.Closer) {
	c.list = append(c.list, closer)
}

// Close closes in reverse order of opening
func (c *closers) Close() error {
	var errs []error
	for i := len(c.list) - 1; i >= 0; i-- {
		if err := c.list[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.list = nil
	return errors.Join(errs...)
}
