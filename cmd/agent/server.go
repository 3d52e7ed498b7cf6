package agent

import (
	"github.com/spf13/cobra"

	"github.com/tapo-exporter/pkg/config"
)

var defaultCfg = config.NewDefaultConfig()

// flag 名中的 - 在加载时映射为配置键中的 _
func initServerFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.String("server.addr", defaultCfg.Server.Addr, "-> HTTP listening address")
	f.Duration("server.read-timeout", defaultCfg.Server.ReadTimeout, "-> Read timeout duration")
	f.Duration("server.write-timeout", defaultCfg.Server.WriteTimeout, "-> Write timeout duration")
	f.Duration("server.idle-timeout", defaultCfg.Server.IdleTimeout, "-> Idle connection timeout duration")
}
