package server

import (
	"github.com/rvlan/duskstore/internal/resp"
	"github.com/rvlan/duskstore/internal/storage"
)

// context carries one command invocation's arguments and a handle back to
// the storage engine.
type context struct {
	args    []resp.Value
	storage *storage.Engine
}

// command is anything the Engine's registry can dispatch to.
type command interface {
	execute(ctx *context) resp.Value
}

// commandFunc adapts a plain function to the command interface.
type commandFunc func(ctx *context) resp.Value

func (f commandFunc) execute(ctx *context) resp.Value {
	return f(ctx)
}

// arg returns the i-th argument as a string, panicking is never an option
// here: callers check len(ctx.args) before indexing.
func (c *context) arg(i int) string {
	return string(c.args[i].String)
}
