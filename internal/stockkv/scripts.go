package stockkv

import "github.com/redis/go-redis/v9"

// decrementScript guards a decrement: read the counter, refuse if missing,
// refuse without mutation if insufficient, otherwise subtract atomically.
// Returns {status, value} where status is
// -1 (missing), 0 (insufficient, value is the current stock), or 1 (ok,
// value is the new stock after decrement).
var decrementScript = redis.NewScript(`
local v = redis.call("get", KEYS[1])
if v == false then
	return {-1, 0}
end
local n = tonumber(v)
local q = tonumber(ARGV[1])
if n < q then
	return {0, n}
end
redis.call("decrby", KEYS[1], q)
return {1, n - q}
`)

// compensateScript is the compensating increment: a missing key must never
// be turned into a positive counter by compensation,
// so the increment is a no-op (reported as such) when the key is absent.
// Returns 1 if applied, 0 if the key was missing.
var compensateScript = redis.NewScript(`
if redis.call("exists", KEYS[1]) == 0 then
	return 0
end
redis.call("incrby", KEYS[1], ARGV[1])
return 1
`)
