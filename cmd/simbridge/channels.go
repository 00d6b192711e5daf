package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/simbridge/simbridge/internal/bridge"
	"github.com/simbridge/simbridge/internal/config"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Serve a set of channels described by a TOML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")

		cfg, err := config.LoadBridgeConfig(path)
		if err != nil {
			return err
		}

		handles := make([]bridge.Handle, 0, len(cfg.Channels))
		blocks := make([]int, 0, len(cfg.Channels))
		for _, ch := range cfg.Channels {
			h, err := bridge.NewServer(ch.Name, ch.Port)
			if err != nil {
				return err
			}
			if err := bridge.Init(h); err != nil {
				return err
			}
			handles = append(handles, h)
			blocks = append(blocks, ch.Block)
		}

		if cfg.HTTPAddr != "" {
			go serveStatus(cfg.HTTPAddr, handles)
		}
		log.Info().Int("channels", len(handles)).Msg("channel set up")

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

		ticker := time.NewTicker(cfg.PollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return nil
			case <-ticker.C:
			}
			for i, h := range handles {
				if err := pollOnce(h, blocks[i]); err != nil {
					return err
				}
			}
		}
	},
}

func init() {
	channelsCmd.Flags().String("config", "channels.toml", "channel-set file")
}
