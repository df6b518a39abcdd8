package cli

import (
	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change account settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective settings of the account",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long: `Change one setting of the account. Valid keys are syncInterval (seconds),
logLevel (debug, info, warn, error), conflictPolicy (server-presides,
local-presides), autoStart, notifications and mirrorBaseDir.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}

type settingsResult struct {
	Account  string            `json:"account"`
	Path     string            `json:"path"`
	Settings map[string]string `json:"settings"`
}

func (r settingsResult) AsTableRenderer() types.TableRenderer {
	rows := make([][]string, 0, len(config.SettingKeys))
	for _, key := range config.SettingKeys {
		rows = append(rows, []string{key, r.Settings[key]})
	}
	return table{headers: []string{"Key", "Value"}, rows: rows}
}

func settingsOf(account, path string, cfg *config.AccountConfig) settingsResult {
	settings := make(map[string]string, len(config.SettingKeys))
	for _, key := range config.SettingKeys {
		settings[key], _ = cfg.Setting(key)
	}
	return settingsResult{Account: account, Path: path, Settings: settings}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := newOutput()
	s, err := openSession(out, true)
	if err != nil {
		return err
	}
	return out.WriteSuccess("config show", settingsOf(s.account, s.store.Path(), s.store.Get(s.account)))
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	out := newOutput()
	s, err := openSession(out, true)
	if err != nil {
		return err
	}
	key, value := args[0], args[1]

	var setErr error
	err = s.store.Update(s.account, func(c *config.AccountConfig) {
		setErr = c.Set(key, value)
	})
	if setErr != nil {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument, setErr.Error()).
			WithContext("key", key).Err()
	}
	if err != nil {
		return err
	}
	return out.WriteSuccess("config set", settingsOf(s.account, s.store.Path(), s.store.Get(s.account)))
}
