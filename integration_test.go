//go:build integration

package ygggo_sql

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startMySQL(t *testing.T) Config {
	t.Helper()
	ctx := context.Background()
	container, err := tcmysql.Run(ctx,
		"mysql:8.0",
		tcmysql.WithDatabase("testdb"),
		tcmysql.WithUsername("testuser"),
		tcmysql.WithPassword("testpass"),
		testcontainers.WithEnv(map[string]string{
			"MYSQL_ROOT_PASSWORD": "rootpass",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("port: 3306  MySQL Community Server").
				WithOccurrence(1).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)
	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	return Config{
		Driver:   EngineMySQL,
		Host:     host,
		Port:     p,
		Username: "testuser",
		Password: "testpass",
		Database: "testdb",
		Params:   map[string]string{"parseTime": "true"},
	}
}

func startPostgres(t *testing.T) Config {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "testuser",
				"POSTGRES_PASSWORD": "testpass",
				"POSTGRES_DB":       "testdb",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	return Config{
		Driver:   EnginePostgres,
		Host:     host,
		Port:     p,
		Username: "testuser",
		Password: "testpass",
		Database: "testdb",
		SSL:      "disable",
	}
}

// exerciseEngine seeds a prefixed table and runs the builder against it.
func exerciseEngine(t *testing.T, cfg Config) {
	ctx := context.Background()
	cfg.Prefix = "it_"
	cfg.MaxClients = 3

	c, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Ping(ctx))

	_, err = c.db.ExecContext(ctx, `CREATE TABLE it_orders (id INT PRIMARY KEY, customer VARCHAR(32), total INT)`)
	require.NoError(t, err)
	_, err = c.db.ExecContext(ctx, `INSERT INTO it_orders (id, customer, total) VALUES
		(1, 'ann', 10), (2, 'ann', 25), (3, 'bo', 5), (4, 'cy', 40), (5, 'cy', 1)`)
	require.NoError(t, err)

	recs, err := c.Table("orders").Where("total", ">=", 10).OrderBy("id", "asc").Get(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	n, err := c.Table("orders").WhereIn("customer", "ann", "cy").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	b := c.Builder("orders")
	h, _ := Find[*HavingBuilder](b)
	h.Base().Select("customer").SelectRaw("SUM(total)", "spent").GroupBy("customer").OrderBy("customer", "asc")
	h.Having("customer", "!=", "bo")
	recs, err = h.Base().Get(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "ann", recs[0]["customer"])

	ch, _ := Find[*ChunkBuilder](c.Builder("orders"))
	ch.Base().OrderBy("id", "asc")
	total := 0
	require.NoError(t, ch.Each(ctx, 2, func(batch []Record) error {
		total += len(batch)
		return nil
	}))
	assert.Equal(t, 5, total)
	assert.Zero(t, c.Stats().Leased)
}

func TestIntegration_MySQL(t *testing.T) {
	exerciseEngine(t, startMySQL(t))
}

func TestIntegration_Postgres(t *testing.T) {
	exerciseEngine(t, startPostgres(t))
}
