package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/simbridge/simbridge/internal/bridge"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Listen on a channel and dump received bytes",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		port, _ := cmd.Flags().GetInt("port")
		block, _ := cmd.Flags().GetInt("block")
		httpAddr, _ := cmd.Flags().GetString("http")
		pollEvery, _ := cmd.Flags().GetDuration("poll")

		var (
			h   bridge.Handle
			err error
		)
		if name == "" {
			h = bridge.NewServerNameless(port)
		} else {
			h, err = bridge.NewServer(name, port)
			if err != nil {
				return err
			}
		}
		if err := bridge.Init(h); err != nil {
			return err
		}

		if httpAddr != "" {
			go serveStatus(httpAddr, []bridge.Handle{h})
		}

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

		p, _ := bridge.Port(h)
		log.Info().Int("port", p).Int("block", block).Msg("listening")

		ticker := time.NewTicker(pollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return nil
			case <-ticker.C:
			}
			if err := pollOnce(h, block); err != nil {
				return err
			}
		}
	},
}

func pollOnce(h bridge.Handle, block int) error {
	if block > 0 {
		out, err := bridge.GetBlock(h, block)
		if err != nil {
			return err
		}
		if out[block] == bridge.StatusValid {
			fmt.Println(hex.Dump(out[:block]))
		}
		return nil
	}
	b, ok, err := bridge.GetByte(h)
	if err != nil {
		return err
	}
	if ok {
		fmt.Printf("%02x ", b)
	}
	return nil
}

func init() {
	listenCmd.Flags().String("name", "", "channel name (empty: nameless creation via environment)")
	listenCmd.Flags().Int("port", 9200, "default port, overridden by <NAME>_PORT")
	listenCmd.Flags().Int("block", 0, "read fixed-size blocks of this many bytes (0: single bytes)")
	listenCmd.Flags().String("http", "", "serve status endpoint on this address")
	listenCmd.Flags().Duration("poll", 200*time.Microsecond, "poll interval")
}
