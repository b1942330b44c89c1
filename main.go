// Package main provides the entry point for the hearsay CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/hearsay-app/hearsay/internal/audio"
	"github.com/hearsay-app/hearsay/internal/cache"
	"github.com/hearsay-app/hearsay/internal/providers"
	"github.com/hearsay-app/hearsay/internal/providers/cloud"
	"github.com/hearsay-app/hearsay/internal/providers/device"
	"github.com/hearsay-app/hearsay/internal/settings"
	"github.com/hearsay-app/hearsay/internal/speech"
	"github.com/hearsay-app/hearsay/internal/syncbus"
	"github.com/hearsay-app/hearsay/internal/voices"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile    string
	voiceFlag     string
	rateFlag      float64
	fromClipboard bool
	debug         bool

	rootCmd = &cobra.Command{
		Use:   "hearsay [text]",
		Short: "Speak text on the CLI, out loud",
		Long: paragraph(
			fmt.Sprintf("\nSpeak text on the CLI, %s. Text comes from arguments, a pipe, or the clipboard; hearsay picks a voice for the language, synthesizes in the cloud when it can and on the device when it must.", keyword("out loud")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.ArbitraryArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			debug = viper.GetBool("debug")
			return nil
		},
		RunE: executeSpeak,
	}
)

// textFromInput resolves the utterance text: clipboard when asked for,
// otherwise a pipe, otherwise the arguments.
func textFromInput(args []string) (string, error) {
	if fromClipboard {
		text, err := clipboard.ReadAll()
		if err != nil {
			return "", fmt.Errorf("read clipboard: %w", err)
		}
		return strings.TrimSpace(text), nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		if text := strings.TrimSpace(string(b)); text != "" {
			return text, nil
		}
	}

	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	return "", nil
}

// expandPath resolves a leading ~ in user-supplied paths.
func expandPath(p string) string {
	if p == "" {
		return p
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return p
	}
	return expanded
}

// engine bundles everything a speaking command needs, with a single
// teardown in the right order.
type engine struct {
	orch     *speech.Orchestrator
	member   *syncbus.Member
	owner    *syncbus.Owner
	bus      syncbus.Bus
	embedded *syncbus.EmbeddedServer
}

func (e *engine) close() {
	if e.orch != nil {
		e.orch.Close()
	}
	if e.member != nil {
		e.member.Stop()
	}
	if e.owner != nil {
		e.owner.Stop()
	}
	if e.bus != nil {
		e.bus.Close()
	}
	e.embedded.Shutdown()
}

// connectBus joins the cross-context sync bus. When no broker is around
// the process falls back to a private in-memory bus and owns its state
// alone; speech still works, it just doesn't sync.
func connectBus(cfg syncbus.Config, logger *log.Logger) (syncbus.Bus, *syncbus.EmbeddedServer) {
	embedded, err := syncbus.StartEmbedded(cfg, logger)
	if err != nil {
		logger.Warn("embedded sync server failed to start", "err", err)
	}
	if embedded != nil {
		cfg.URL = embedded.ClientURL()
	}

	bus, err := syncbus.Connect(cfg, logger)
	if err != nil {
		logger.Debug("sync bus unavailable, running standalone", "err", err)
		return syncbus.NewMemoryBus(), embedded
	}
	return bus, embedded
}

func newEngine(logger *log.Logger) (*engine, error) {
	cfg, err := speech.LoadConfig()
	if err != nil {
		return nil, err
	}
	busCfg, err := loadBusConfig()
	if err != nil {
		return nil, err
	}

	storePath := expandPath(viper.GetString("state_file"))
	if storePath == "" {
		if storePath, err = settings.DefaultPath(); err != nil {
			return nil, err
		}
	}
	store, err := settings.Open(storePath)
	if err != nil {
		return nil, err
	}

	e := &engine{}
	e.bus, e.embedded = connectBus(busCfg, logger)

	// Every process registers as owner; with NATS the first responder
	// wins each request, with the in-memory bus this process is alone.
	e.owner = syncbus.NewOwner(store, e.bus, logger)
	if err := e.owner.Start(); err != nil {
		e.close()
		return nil, err
	}

	execCfg := device.DefaultExecConfig()
	if b := viper.GetString("device.binary"); b != "" {
		execCfg.Binary = b
	}
	deviceProv := device.New(device.NewExecEngine(execCfg, logger), cfg.Device, logger)

	var cloudProv providers.Provider
	cloudCfg := cfg.Cloud
	if cloudCfg.APIKey == "" {
		cloudCfg.APIKey = viper.GetString("cloud.api_key")
	}
	if cloudCfg.APIKey != "" {
		cloudProv = cloud.New(cloudCfg, logger)
	} else {
		logger.Debug("no cloud api key, on-device only")
	}

	player, err := audio.NewPlayer(cloudCfg.SampleRate, cloudCfg.Channels, logger)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("audio device unavailable: %w", err)
	}

	e.orch = speech.New(speech.Options{
		Catalog:     voices.NewCatalog(),
		Cache:       cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries),
		Device:      deviceProv,
		Cloud:       cloudProv,
		Player:      player,
		Logger:      logger,
		Shared:      store.Load(),
		PreferCloud: cfg.PreferCloud,
	})

	e.member = syncbus.NewMember(e.bus, logger, func(state settings.Shared) {
		if err := e.orch.ApplyShared(context.Background(), state); err != nil {
			logger.Warn("applying shared state failed", "err", err)
		}
	})
	if err := e.member.Start(); err != nil {
		e.close()
		return nil, err
	}

	return e, nil
}

func loadBusConfig() (syncbus.Config, error) {
	cfg, err := syncbus.ParseConfig()
	if err != nil {
		return syncbus.Config{}, err
	}
	if u := viper.GetString("bus.url"); u != "" {
		cfg.URL = u
	}
	if viper.IsSet("bus.embedded") {
		cfg.Embedded = viper.GetBool("bus.embedded")
	}
	return cfg, nil
}

func executeSpeak(cmd *cobra.Command, args []string) error {
	text, err := textFromInput(args)
	if err != nil {
		return err
	}
	if text == "" {
		return cmd.Help()
	}

	logger := log.Default()
	e, err := newEngine(logger)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cmd.Flags().Changed("voice") {
		if err := e.member.SetVoice(voiceFlag); err != nil {
			logger.Warn("voice selection not synced", "err", err)
		}
	}
	if cmd.Flags().Changed("rate") {
		if err := e.member.SetRate(rateFlag); err != nil {
			logger.Warn("rate not synced", "err", err)
		}
	}
	if err := e.orch.ApplyShared(ctx, e.member.State()); err != nil {
		return err
	}

	e.orch.RefreshVoices(ctx)
	if err := e.orch.Play(ctx, text); err != nil {
		return speakError(err)
	}

	for {
		select {
		case <-ctx.Done():
			e.orch.Stop()
			return nil
		case ev := <-e.orch.Events():
			switch ev.Type {
			case speech.EventEnded, speech.EventStopped:
				return nil
			case speech.EventFailed:
				return speakError(ev.Err)
			}
		}
	}
}

// speakError turns a session failure into a short human-readable message.
func speakError(err error) error {
	switch speech.Classify(err) {
	case speech.FailureNoVoice:
		return errors.New("no installed or remote voice covers this language")
	case speech.FailureUnreachable:
		return errors.New("speech service unreachable and no on-device voice could take over")
	case speech.FailureTimeout:
		return errors.New("speech synthesis timed out")
	case speech.FailureRejected:
		return errors.New("the speech service rejected this request")
	default:
		return err
	}
}

var voicesCmd = &cobra.Command{
	Use:   "voices [query]",
	Short: "List available voices",
	Long:  paragraph(fmt.Sprintf("\n%s the voices installed on this device and offered by the cloud service, optionally filtered by a fuzzy query.", keyword("List"))),
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.Default()
		cfg, err := speech.LoadConfig()
		if err != nil {
			return err
		}

		catalog := voices.NewCatalog()
		deviceProv := device.New(device.NewExecEngine(device.DefaultExecConfig(), logger), cfg.Device, logger)
		list, err := deviceProv.Voices(cmd.Context())
		if err == nil {
			catalog.Refresh(voices.OnDevice, list)
		}

		cloudCfg := cfg.Cloud
		if cloudCfg.APIKey == "" {
			cloudCfg.APIKey = viper.GetString("cloud.api_key")
		}
		if cloudCfg.APIKey != "" {
			if list, err := cloud.New(cloudCfg, logger).Voices(cmd.Context()); err == nil {
				catalog.Refresh(voices.Cloud, list)
			} else {
				logger.Warn("cloud voices unavailable", "err", err)
			}
		}

		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		matches := catalog.Search(query)
		if len(matches) == 0 {
			fmt.Println(paragraph("No matching voices."))
			return nil
		}
		for _, v := range matches {
			fmt.Printf("  %s  %s %s\n",
				voiceNameStyle.Render(v.DisplayName),
				v.Language,
				subtle(fmt.Sprintf("(%s, %s)", v.Provider, v.ID)))
		}
		return nil
	},
}

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Run the shared-state hub",
	Long:  paragraph(fmt.Sprintf("\nRun a long-lived %s that owns the shared speech settings, so every hearsay instance on this machine agrees on voice, rate and whether speech is on.", keyword("hub"))),
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := log.Default()

		busCfg, err := loadBusConfig()
		if err != nil {
			return err
		}
		busCfg.Embedded = true

		storePath := expandPath(viper.GetString("state_file"))
		if storePath == "" {
			if storePath, err = settings.DefaultPath(); err != nil {
				return err
			}
		}
		store, err := settings.Open(storePath)
		if err != nil {
			return err
		}

		embedded, err := syncbus.StartEmbedded(busCfg, logger)
		if err != nil {
			return err
		}
		defer embedded.Shutdown()
		busCfg.URL = embedded.ClientURL()

		bus, err := syncbus.Connect(busCfg, logger)
		if err != nil {
			return err
		}
		defer bus.Close()

		owner := syncbus.NewOwner(store, bus, logger)
		if err := owner.Start(); err != nil {
			return err
		}
		defer owner.Stop()

		fmt.Println(paragraph(fmt.Sprintf("Hub running on %s, state in %s.", keyword(busCfg.URL), filepath.Clean(storePath))))

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()
		return nil
	},
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")
	rootCmd.Flags().StringVar(&voiceFlag, "voice", "", "voice id to speak with")
	rootCmd.Flags().Float64VarP(&rateFlag, "rate", "r", 1.0, "playback rate (0.5 to 3.0)")
	rootCmd.Flags().BoolVarP(&fromClipboard, "clipboard", "b", false, "speak the clipboard contents")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("rate", rootCmd.Flags().Lookup("rate"))

	viper.SetDefault("rate", 1.0)
	viper.SetDefault("bus.url", "")
	viper.SetDefault("bus.embedded", false)
	viper.SetDefault("state_file", "")

	rootCmd.AddCommand(voicesCmd, hubCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "hearsay")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "hearsay")}, dirs...)
	}

	if c := os.Getenv("HEARSAY_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("hearsay")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("hearsay")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "hearsay.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
