package main

import (
	"database/sql"

	goredis "github.com/go-redis/redis/v8"

	redisstore "signalradar/internal/store/redis"
	sqlitestore "signalradar/internal/store/sqlite"
)

// nil-safe accessors for optional stores

func cacheDB(c *sqlitestore.Cache) *sql.DB {
	if c == nil {
		return nil
	}
	return c.DB()
}

func redisClient(p *redisstore.Publisher) *goredis.Client {
	if p == nil {
		return nil
	}
	return p.Client()
}
