package server

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rvlan/duskstore/internal/resp"
	"github.com/rvlan/duskstore/internal/storage"
	"github.com/rvlan/duskstore/internal/zset"
)

// errorValue turns a storage error into the RESP error reply clients
// expect, prefixing WRONGTYPE the way Redis-compatible clients detect it;
// everything else gets a generic ERR prefix.
func errorValue(err error) resp.Value {
	var storageErr *storage.Error
	if errors.As(err, &storageErr) {
		switch storageErr.Kind {
		case storage.KindWrongType:
			return resp.MakeError("WRONGTYPE " + storageErr.Msg)
		default:
			return resp.MakeError("ERR " + storageErr.Msg)
		}
	}
	return resp.MakeError("ERR " + err.Error())
}

func wrongArgs(name string) resp.Value {
	return resp.MakeErrorWrongNumberOfArguments(name)
}

func ping(ctx *context) resp.Value {
	switch len(ctx.args) {
	case 0:
		return resp.MakeSimpleString("PONG")
	case 1:
		return resp.MakeBulkString(ctx.arg(0))
	default:
		return wrongArgs("ping")
	}
}

func get(ctx *context) resp.Value {
	if len(ctx.args) != 1 {
		return wrongArgs("get")
	}
	s, ok, err := ctx.storage.Get(ctx.arg(0))
	if err != nil {
		return errorValue(err)
	}
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkString(s)
}

func set(ctx *context) resp.Value {
	if len(ctx.args) < 2 {
		return wrongArgs("set")
	}

	key, value := ctx.arg(0), ctx.arg(1)

	var nx bool
	var ttl time.Duration
	hasTTL := false

	rest := ctx.args[2:]
	for i := 0; i < len(rest); i++ {
		opt := strings.ToUpper(string(rest[i].String))
		switch opt {
		case "NX":
			nx = true
		case "EX":
			if hasTTL {
				return resp.MakeError("ERR syntax error")
			}
			i++
			if i >= len(rest) {
				return resp.MakeError("ERR syntax error")
			}
			// Zero is allowed: it schedules an effectively immediate
			// expiry, deleted on the worker's next pass.
			seconds, err := strconv.ParseInt(string(rest[i].String), 10, 64)
			if err != nil || seconds < 0 {
				return resp.MakeError("ERR invalid expire time in 'set' command")
			}
			ttl = time.Duration(seconds) * time.Second
			hasTTL = true
		default:
			return resp.MakeError("ERR syntax error")
		}
	}

	if nx && hasTTL {
		return resp.MakeError("ERR syntax error")
	}

	if nx {
		if !ctx.storage.SetNX(key, storage.StringValue(value)) {
			return resp.MakeNilBulkString()
		}
		return resp.MakeSimpleString("OK")
	}

	if hasTTL {
		ctx.storage.SetEX(key, storage.StringValue(value), ttl)
	} else {
		ctx.storage.Set(key, storage.StringValue(value))
	}
	return resp.MakeSimpleString("OK")
}

func del(ctx *context) resp.Value {
	if len(ctx.args) < 1 {
		return wrongArgs("del")
	}
	var count int64
	for i := range ctx.args {
		if ctx.storage.Del(ctx.arg(i)) {
			count++
		}
	}
	return resp.MakeInteger(count)
}

func exists(ctx *context) resp.Value {
	if len(ctx.args) < 1 {
		return wrongArgs("exists")
	}
	var count int64
	for i := range ctx.args {
		if ctx.storage.Exists(ctx.arg(i)) {
			count++
		}
	}
	return resp.MakeInteger(count)
}

func expire(ctx *context) resp.Value {
	if len(ctx.args) != 2 {
		return wrongArgs("expire")
	}
	seconds, err := strconv.ParseInt(ctx.arg(1), 10, 64)
	if err != nil {
		return resp.MakeError("ERR value is not an integer or out of range")
	}
	if seconds < 0 {
		return resp.MakeError("ERR invalid expire time in 'expire' command")
	}
	if ctx.storage.Expire(ctx.arg(0), time.Duration(seconds)*time.Second) {
		return resp.MakeInteger(1)
	}
	return resp.MakeInteger(0)
}

func ttl(ctx *context) resp.Value {
	if len(ctx.args) != 1 {
		return wrongArgs("ttl")
	}
	return resp.MakeInteger(ctx.storage.TTL(ctx.arg(0)))
}

func persist(ctx *context) resp.Value {
	if len(ctx.args) != 1 {
		return wrongArgs("persist")
	}
	if ctx.storage.Persist(ctx.arg(0)) {
		return resp.MakeInteger(1)
	}
	return resp.MakeInteger(0)
}

func dbsize(ctx *context) resp.Value {
	if len(ctx.args) != 0 {
		return wrongArgs("dbsize")
	}
	return resp.MakeInteger(ctx.storage.DBSize())
}

func flushdb(ctx *context) resp.Value {
	if len(ctx.args) != 0 {
		return wrongArgs("flushdb")
	}
	ctx.storage.FlushDB()
	return resp.MakeSimpleString("OK")
}

func zadd(ctx *context) resp.Value {
	if len(ctx.args) < 3 || len(ctx.args)%2 != 1 {
		return wrongArgs("zadd")
	}

	key := ctx.arg(0)
	pairs := make([]storage.ZAddPair, 0, (len(ctx.args)-1)/2)
	for i := 1; i < len(ctx.args); i += 2 {
		// ParseFloat accepts "nan"; reject it here so a multi-pair ZADD
		// fails before any pair is applied and the set stays unchanged.
		score, err := strconv.ParseFloat(ctx.arg(i), 64)
		if err != nil || math.IsNaN(score) {
			return resp.MakeError("ERR value is not a valid float")
		}
		pairs = append(pairs, storage.ZAddPair{Score: score, Member: ctx.arg(i + 1)})
	}

	added, err := ctx.storage.ZAdd(key, pairs)
	if err != nil {
		return errorValue(err)
	}
	return resp.MakeInteger(added)
}

func zrem(ctx *context) resp.Value {
	if len(ctx.args) < 2 {
		return wrongArgs("zrem")
	}
	key := ctx.arg(0)
	members := make([]string, len(ctx.args)-1)
	for i := 1; i < len(ctx.args); i++ {
		members[i-1] = ctx.arg(i)
	}
	removed, err := ctx.storage.ZRem(key, members)
	if err != nil {
		return errorValue(err)
	}
	return resp.MakeInteger(removed)
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 6, 64)
}

func zscore(ctx *context) resp.Value {
	if len(ctx.args) != 2 {
		return wrongArgs("zscore")
	}
	score, ok, err := ctx.storage.ZScore(ctx.arg(0), ctx.arg(1))
	if err != nil {
		return errorValue(err)
	}
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkString(formatScore(score))
}

func zrank(ctx *context) resp.Value {
	if len(ctx.args) != 2 {
		return wrongArgs("zrank")
	}
	rank, ok, err := ctx.storage.ZRank(ctx.arg(0), ctx.arg(1))
	if err != nil {
		return errorValue(err)
	}
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeInteger(int64(rank))
}

func zcard(ctx *context) resp.Value {
	if len(ctx.args) != 1 {
		return wrongArgs("zcard")
	}
	card, err := ctx.storage.ZCard(ctx.arg(0))
	if err != nil {
		return errorValue(err)
	}
	return resp.MakeInteger(card)
}

func hasWithScores(args []resp.Value) bool {
	if len(args) == 0 {
		return false
	}
	return strings.EqualFold(string(args[len(args)-1].String), "WITHSCORES")
}

func zrange(ctx *context) resp.Value {
	if len(ctx.args) < 3 {
		return wrongArgs("zrange")
	}
	withScores := hasWithScores(ctx.args[3:])
	if len(ctx.args) != 3 && !(len(ctx.args) == 4 && withScores) {
		return resp.MakeError("ERR syntax error")
	}

	start, err := strconv.Atoi(ctx.arg(1))
	if err != nil {
		return resp.MakeError("ERR value is not an integer or out of range")
	}
	stop, err := strconv.Atoi(ctx.arg(2))
	if err != nil {
		return resp.MakeError("ERR value is not an integer or out of range")
	}

	pairs, err := ctx.storage.ZRange(ctx.arg(0), start, stop)
	if err != nil {
		return errorValue(err)
	}
	return makePairsArray(pairs, withScores)
}

func zrangebyscore(ctx *context) resp.Value {
	if len(ctx.args) < 3 {
		return wrongArgs("zrangebyscore")
	}
	withScores := hasWithScores(ctx.args[3:])
	if len(ctx.args) != 3 && !(len(ctx.args) == 4 && withScores) {
		return resp.MakeError("ERR syntax error")
	}

	min, err := strconv.ParseFloat(ctx.arg(1), 64)
	if err != nil {
		return resp.MakeError("ERR value is not a valid float")
	}
	max, err := strconv.ParseFloat(ctx.arg(2), 64)
	if err != nil {
		return resp.MakeError("ERR value is not a valid float")
	}

	pairs, err := ctx.storage.ZRangeByScore(ctx.arg(0), min, max)
	if err != nil {
		return errorValue(err)
	}
	return makePairsArray(pairs, withScores)
}

func makePairsArray(pairs []zset.Pair, withScores bool) resp.Value {
	values := make([]resp.Value, 0, len(pairs)*2)
	for _, p := range pairs {
		values = append(values, resp.MakeBulkString(p.Member))
		if withScores {
			values = append(values, resp.MakeBulkString(formatScore(p.Score)))
		}
	}
	return resp.MakeArray(values)
}

func commandInfo(ctx *context) resp.Value {
	if len(ctx.args) == 0 {
		return getAllCommands()
	}
	sub := strings.ToUpper(ctx.arg(0))
	if sub == "DOCS" {
		return getCommandsDocs(ctx.args[1:])
	}
	return resp.MakeError(fmt.Sprintf("ERR unknown subcommand '%s'", sub))
}
