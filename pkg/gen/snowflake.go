package gen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"cashback-ranking/pkg/config"
)

var Module = fx.Module("snowflake", fx.Provide(ProvideSnowflakeNode))

type SnowflakeNode struct {
	node *snowflake.Node
}

// NewSnowflakeNode accepts node ids 0..1023.
func NewSnowflakeNode(nodeID int64) (*SnowflakeNode, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		zap.L().Error("[Snowflake] failed to init node", zap.Int64("node_id", nodeID), zap.Error(err))
		return nil, err
	}
	return &SnowflakeNode{node: node}, nil
}

func ProvideSnowflakeNode(cfg *config.Config) (*SnowflakeNode, error) {
	return NewSnowflakeNode(cfg.NodeID)
}

func (s *SnowflakeNode) GenerateID() snowflake.ID {
	return s.node.Generate()
}
