package labmirror

import (
	"fmt"

	"github.com/skaphos/labmirror/internal/config"
	"github.com/spf13/cobra"
)

const (
	urlUsage   = "hosting base URL (default from config host_url)"
	tokenUsage = "API access token (wins over " + config.TokenEnv + " and the config file)"
)

func addHostFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", "", urlUsage)
	cmd.Flags().String("token", "", tokenUsage)
	cmd.Flags().Bool("use-ssh", false, "use SSH remotes instead of tokenized HTTPS")
	cmd.Flags().Int("concurrency", 0, "max repositories in flight at once (default from config concurrent_clones)")
}

// resolveHost merges flag values over the config for the hosting
// connection. The token is never printed.
func resolveHost(cmd *cobra.Command, cfg *config.Config) (hostURL, token string, err error) {
	hostURL, _ = cmd.Flags().GetString("url")
	if hostURL == "" {
		hostURL = cfg.HostURL
	}
	if hostURL == "" {
		return "", "", fmt.Errorf("no hosting URL (use --url or host_url in config)")
	}

	token, _ = cmd.Flags().GetString("token")
	if token == "" {
		token = cfg.ResolveToken()
	}
	if token == "" {
		return "", "", fmt.Errorf("no API token (use --token, %s, or token in config)", config.TokenEnv)
	}
	return hostURL, token, nil
}
