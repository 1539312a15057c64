// Package redis provides a Redis-backed document catalog.
//
// Each document is stored as a JSON value under "<prefix>document:<id>" and
// indexed in the sorted set "<prefix>documents", scored by creation time in
// milliseconds, so listings come back oldest first.
//
// # Basic Usage
//
//	catalog := redis.NewRedisCatalog(redis.RedisOptions{
//		Addr:   "localhost:6379",
//		Prefix: "docrag:", // Optional key prefix
//	})
//	defer catalog.Close()
//
// Several processes can share one catalog. Concurrent writers to the same
// document follow last-write-wins.
package redis
