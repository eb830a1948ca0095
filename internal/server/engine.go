package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rvlan/duskstore/internal/config"
	"github.com/rvlan/duskstore/internal/resp"
	"github.com/rvlan/duskstore/internal/storage"
)

// Engine coordinates the execution of commands and manages the background
// tasks of the repository.
type Engine struct {
	commands map[string]command // Registry of available commands (the key is the command name in uppercase)
	storage  *storage.Engine    // Storage Engine backing every command
	cfg      *config.Config     // Configuration engine
	stopGC   chan struct{}      // Channel for the background safety-sweep stop signal
	stopOnce sync.Once          // Ensures that the stop happens only once
	logger   *zap.Logger
}

// NewEngine initializes the engine, registers the basic commands, and
// if enabled in the config, starts the periodic expiry safety sweep.
func NewEngine(s *storage.Engine, cfg *config.Config, logger *zap.Logger) *Engine {
	engine := Engine{
		commands: make(map[string]command),
		storage:  s,
		cfg:      cfg,
		stopGC:   make(chan struct{}),
		logger:   logger,
	}
	engine.registerBasicCommands()

	if cfg.GC.Enabled {
		go engine.startGCLoop()
	}

	return &engine
}

// startGCLoop is a safety net above the Storage Engine's own
// deadline-driven worker: it forces a sweep on a fixed cadence in case a
// wakeup was ever missed.
func (e *Engine) startGCLoop() {
	ticker := time.NewTicker(e.cfg.GC.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.storage.Sweep()
		case <-e.stopGC:
			e.logger.Info("safety sweep stopped")
			return
		}
	}
}

// register adds a new command to the engine. The command name is uppercase
func (e *Engine) register(name string, cmd command) {
	e.commands[strings.ToUpper(name)] = cmd
}

// registerBasicCommands fills the registry with the supported command set.
func (e *Engine) registerBasicCommands() {
	e.register("PING", commandFunc(ping))
	e.register("GET", commandFunc(get))
	e.register("SET", commandFunc(set))
	e.register("DEL", commandFunc(del))
	e.register("EXISTS", commandFunc(exists))
	e.register("EXPIRE", commandFunc(expire))
	e.register("TTL", commandFunc(ttl))
	e.register("PERSIST", commandFunc(persist))
	e.register("DBSIZE", commandFunc(dbsize))
	e.register("FLUSHDB", commandFunc(flushdb))

	e.register("ZADD", commandFunc(zadd))
	e.register("ZREM", commandFunc(zrem))
	e.register("ZSCORE", commandFunc(zscore))
	e.register("ZRANK", commandFunc(zrank))
	e.register("ZCARD", commandFunc(zcard))
	e.register("ZRANGE", commandFunc(zrange))
	e.register("ZRANGEBYSCORE", commandFunc(zrangebyscore))

	e.register("COMMAND", commandFunc(commandInfo))
}

// Execute finds the command by name and executes it with the passed arguments.
// If the command is not found, returns an error in the RESP format
func (e *Engine) Execute(name string, args []resp.Value) resp.Value {
	if ce := e.logger.Check(zap.DebugLevel, "executing command"); ce != nil {
		ce.Write(zap.String("cmd", name), zap.Int("args_count", len(args)))
	}

	cmd, ok := e.commands[strings.ToUpper(name)]
	if !ok {
		return resp.MakeError(fmt.Sprintf("ERR unknown command '%s'", name))
	}

	ctx := &context{
		args:    args,
		storage: e.storage,
	}

	return cmd.execute(ctx)
}

// Shutdown shuts down the engine and its background services correctly
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() {
		if e.cfg.GC.Enabled {
			close(e.stopGC)
		}
		e.storage.Shutdown()
	})
}
