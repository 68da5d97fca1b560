package gen

import (
	"fmt"

	"promptcron/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("gen",
	fx.Provide(NewNode),
)

const executionPrefix = "exec_"

// NewNode returns the snowflake node used for every generated identifier.
// Each replica needs its own APP_NODE_ID or execution ids collide.
func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.AppNodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.AppNodeID, err)
	}
	return node, nil
}

// ExecutionID returns a unique, time ordered execution identifier.
func ExecutionID(node *snowflake.Node) string {
	return executionPrefix + node.Generate().String()
}

// ShortID returns a compact unique suffix for generated names.
func ShortID(node *snowflake.Node) string {
	return node.Generate().Base36()
}
