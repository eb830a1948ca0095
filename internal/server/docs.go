package server

import (
	"strings"

	"github.com/rvlan/duskstore/internal/resp"
)

type commandMetadata struct {
	arity    int      // Arity includes the command name itself
	flags    []string // read, write, fast, denyoom, etc
	firstKey int      // 1-based index of the first key
	lastKey  int      // 1-based index of the last key
	step     int      // Step count for finding keys
}

var (
	commandRegistry = map[string]commandMetadata{
		"PING":          {-1, []string{"fast", "stale"}, 0, 0, 0},
		"GET":           {2, []string{"readonly", "fast"}, 1, 1, 1},
		"SET":           {-3, []string{"write", "denyoom"}, 1, 1, 1},
		"DEL":           {-2, []string{"write"}, 1, -1, 1},
		"EXISTS":        {-2, []string{"readonly", "fast"}, 1, -1, 1},
		"EXPIRE":        {3, []string{"write", "fast"}, 1, 1, 1},
		"TTL":           {2, []string{"readonly", "fast"}, 1, 1, 1},
		"PERSIST":       {2, []string{"write", "fast"}, 1, 1, 1},
		"DBSIZE":        {1, []string{"readonly", "fast"}, 0, 0, 0},
		"FLUSHDB":       {1, []string{"write"}, 0, 0, 0},
		"ZADD":          {-4, []string{"write", "denyoom"}, 1, 1, 1},
		"ZREM":          {-3, []string{"write", "fast"}, 1, 1, 1},
		"ZSCORE":        {3, []string{"readonly", "fast"}, 1, 1, 1},
		"ZRANK":         {3, []string{"readonly", "fast"}, 1, 1, 1},
		"ZCARD":         {2, []string{"readonly", "fast"}, 1, 1, 1},
		"ZRANGE":        {-4, []string{"readonly"}, 1, 1, 1},
		"ZRANGEBYSCORE": {-4, []string{"readonly"}, 1, 1, 1},
		"COMMAND":       {-1, []string{"random", "loading", "stale"}, 0, 0, 0},
	}
)

// commandDoc stores a description for the command
type commandDoc struct {
	summary    string
	complexity string
	group      string
	since      string
}

// commandDocsRegistry documentation registry
var commandDocsRegistry = map[string]commandDoc{
	"PING": {
		summary:    "Ping the server.",
		complexity: "O(1)",
		group:      "connection",
		since:      "1.0.0",
	},
	"GET": {
		summary:    "Get the value of a key.",
		complexity: "O(1)",
		group:      "string",
		since:      "1.0.0",
	},
	"SET": {
		summary:    "Set the string value of a key.",
		complexity: "O(1)",
		group:      "string",
		since:      "1.0.0",
	},
	"DEL": {
		summary:    "Delete a key.",
		complexity: "O(N) where N is the number of keys that will be removed.",
		group:      "generic",
		since:      "1.0.0",
	},
	"TTL": {
		summary:    "Get the time to live for a key in seconds.",
		complexity: "O(1)",
		group:      "generic",
		since:      "1.0.0",
	},
	"PERSIST": {
		summary:    "Remove the expiration from a key.",
		complexity: "O(1)",
		group:      "generic",
		since:      "1.0.0",
	},
	"EXISTS": {
		summary:    "Determine if a key exists.",
		complexity: "O(N) where N is the number of keys to check.",
		group:      "generic",
		since:      "1.0.0",
	},
	"EXPIRE": {
		summary:    "Set a key's time to live in seconds.",
		complexity: "O(1)",
		group:      "generic",
		since:      "1.0.0",
	},
	"DBSIZE": {
		summary:    "Return the number of keys in the database.",
		complexity: "O(1)",
		group:      "server",
		since:      "1.0.0",
	},
	"FLUSHDB": {
		summary:    "Remove all keys from the database.",
		complexity: "O(N)",
		group:      "server",
		since:      "1.0.0",
	},
	"ZADD": {
		summary:    "Add one or more members to a sorted set, or update its score if it already exists.",
		complexity: "O(log(N)) for each member added, where N is the number of elements in the sorted set.",
		group:      "sorted_set",
		since:      "1.0.0",
	},
	"ZREM": {
		summary:    "Remove one or more members from a sorted set.",
		complexity: "O(M*log(N)) with N being the number of elements in the sorted set and M the number of members to be removed.",
		group:      "sorted_set",
		since:      "1.0.0",
	},
	"ZSCORE": {
		summary:    "Get the score associated with the given member in a sorted set.",
		complexity: "O(1)",
		group:      "sorted_set",
		since:      "1.0.0",
	},
	"ZRANK": {
		summary:    "Determine the index of a member in a sorted set.",
		complexity: "O(log(N))",
		group:      "sorted_set",
		since:      "1.0.0",
	},
	"ZCARD": {
		summary:    "Get the number of members in a sorted set.",
		complexity: "O(1)",
		group:      "sorted_set",
		since:      "1.0.0",
	},
	"ZRANGE": {
		summary:    "Return a range of members in a sorted set, by rank.",
		complexity: "O(M*log(N)) with N being the number of elements in the sorted set and M the number of elements returned.",
		group:      "sorted_set",
		since:      "1.0.0",
	},
	"ZRANGEBYSCORE": {
		summary:    "Return a range of members in a sorted set, by score.",
		complexity: "O(log(N)+M) with N being the number of elements in the sorted set and M the number of elements returned.",
		group:      "sorted_set",
		since:      "1.0.0",
	},
	"COMMAND": {
		summary:    "Get array of command details.",
		complexity: "O(N) where N is the number of commands to look up.",
		group:      "server",
		since:      "1.0.0",
	},
}

func makeFlagsArray(flags []string) resp.Value {
	vals := make([]resp.Value, len(flags))
	for i, f := range flags {
		vals[i] = resp.MakeSimpleString(f)
	}
	return resp.MakeArray(vals)
}

func makeInfoCmdArray(name string) []resp.Value {
	return []resp.Value{
		resp.MakeBulkString(name),
		resp.MakeInteger(int64(commandRegistry[name].arity)),
		makeFlagsArray(commandRegistry[name].flags),
		resp.MakeInteger(int64(commandRegistry[name].firstKey)),
		resp.MakeInteger(int64(commandRegistry[name].lastKey)),
		resp.MakeInteger(int64(commandRegistry[name].step)),
	}
}

func getAllCommands() resp.Value {
	cmdArray := make([]resp.Value, 0, len(commandRegistry))
	for name := range commandRegistry {
		details := makeInfoCmdArray(name)
		cmdArray = append(cmdArray, resp.MakeArray(details))
	}
	return resp.MakeArray(cmdArray)
}

// getCommandsDocs returns documentation for specified commands or all commands
// Format: [Name, [Summary, val, Since, val...], Name, [...]]
func getCommandsDocs(args []resp.Value) resp.Value {
	var targets []string

	if len(args) == 0 {
		targets = make([]string, 0, len(commandDocsRegistry))
		for name := range commandDocsRegistry {
			targets = append(targets, name)
		}
	} else {
		targets = make([]string, 0, len(args))
		for _, arg := range args {
			targets = append(targets, strings.ToUpper(string(arg.String)))
		}
	}

	result := make([]resp.Value, 0, len(targets)*2)

	for _, name := range targets {
		doc, ok := commandDocsRegistry[name]
		if !ok {
			continue
		}

		result = append(result, resp.MakeBulkString(name))

		props := []resp.Value{
			resp.MakeBulkString("summary"),
			resp.MakeBulkString(doc.summary),
			resp.MakeBulkString("since"),
			resp.MakeBulkString(doc.since),
			resp.MakeBulkString("group"),
			resp.MakeBulkString(doc.group),
			resp.MakeBulkString("complexity"),
			resp.MakeBulkString(doc.complexity),
		}

		result = append(result, resp.MakeArray(props))
	}

	return resp.MakeArray(result)
}
