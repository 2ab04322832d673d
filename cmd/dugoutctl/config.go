package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/showdownclub/dugout/internal/board"
)

type Config struct {
	server     string
	game       string
	password   string
	dropPolicy string
	compress   bool
	timeout    time.Duration
	verbose    bool

	policy board.DropPolicy
}

func (c *Config) validate() error {
	u, err := url.Parse(c.server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid --server %q: want an http or https URL", c.server)
	}
	c.policy, err = board.ParseDropPolicy(c.dropPolicy)
	if err != nil {
		return err
	}
	if c.timeout <= 0 {
		return errors.New("--timeout must be positive")
	}
	return nil
}

// shareBase is the page players open; the server hosts it at its root.
func (c *Config) shareBase() string {
	return strings.TrimSuffix(c.server, "/") + "/"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DUGOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "dugoutctl",
		Short:         "Play a shared tabletop baseball board from the terminal.",
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.validate()
		},
	}

	fs := cmd.PersistentFlags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.server, "server", "s", "http://localhost:8080", "dugout server URL (env: DUGOUT_SERVER)")
	fs.StringVarP(&cfg.game, "game", "g", "", "game id to join (env: DUGOUT_GAME)")
	fs.StringVar(&cfg.password, "password", "", "table password, if the server has one (env: DUGOUT_PASSWORD)")
	fs.StringVar(&cfg.dropPolicy, "drop-policy", "reject-slot", "what a drop over a slot does: reject-slot or accept-slot (env: DUGOUT_DROP_POLICY)")
	fs.BoolVar(&cfg.compress, "compress", true, "shrink images before uploading (env: DUGOUT_COMPRESS)")
	fs.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "how long to wait for the game to load (env: DUGOUT_TIMEOUT)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "log connection details to stderr (env: DUGOUT_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(
		newNewCmd(cfg),
		newShowCmd(cfg),
		newRollCmd(cfg),
		newScoreCmd(cfg),
		newPlaceCmd(cfg),
		newDragCmd(cfg),
		newWatchCmd(cfg),
		newURLCmd(cfg),
	)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("dugoutctl v{{.Version}}\n")

	return cmd
}
