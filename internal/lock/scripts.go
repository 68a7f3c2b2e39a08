package lock

import "github.com/redis/go-redis/v9"

// releaseScript performs a compare-and-delete: the key is removed only if its
// current value equals the presented token, so a caller that lost its lock
// (e.g. after a TTL expiry during a pause) can never delete a successor's
// lock. Returns 1 if deleted, 0 otherwise.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// extendScript performs a compare-and-refresh: the key's TTL is reset only if
// its current value equals the presented token. Returns 1 if refreshed, 0
// otherwise.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)
