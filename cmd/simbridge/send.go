package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/simbridge/simbridge/internal/bridge"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Connect to a channel and send a payload",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		port, _ := cmd.Flags().GetInt("port")
		block, _ := cmd.Flags().GetInt("block")
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")

		if name == "" {
			return fmt.Errorf("send: --name is required")
		}
		payload, err := loadPayload(text, file)
		if err != nil {
			return err
		}

		h, err := bridge.NewClient(name, port)
		if err != nil {
			return err
		}
		if err := bridge.Init(h); err != nil {
			return err
		}

		if block > 0 {
			return sendBlocks(h, payload, block)
		}
		return sendBytes(h, payload)
	},
}

func loadPayload(text, file string) ([]byte, error) {
	switch {
	case text != "" && file != "":
		return nil, fmt.Errorf("send: --text and --file are mutually exclusive")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("send: read payload: %w", err)
		}
		return data, nil
	case text != "":
		return []byte(text), nil
	default:
		return nil, fmt.Errorf("send: a payload is required (--text or --file)")
	}
}

func sendBlocks(h bridge.Handle, payload []byte, block int) error {
	for off := 0; off < len(payload); off += block {
		end := off + block
		if end > len(payload) {
			end = len(payload)
		}
		for {
			ok, err := bridge.PutBlock(h, payload[off:end])
			if err != nil {
				return err
			}
			if ok {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}
	log.Info().Int("bytes", len(payload)).Msg("payload sent")
	return nil
}

func sendBytes(h bridge.Handle, payload []byte) error {
	for i, b := range payload {
		ok, err := bridge.PutByteBlocking(h, b)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("send: peer did not drain after %d of %d bytes", i, len(payload))
		}
	}
	log.Info().Int("bytes", len(payload)).Msg("payload sent")
	return nil
}

func init() {
	sendCmd.Flags().String("name", "", "channel name")
	sendCmd.Flags().Int("port", 9200, "default port, overridden by <NAME>_PORT")
	sendCmd.Flags().Int("block", 0, "send fixed-size blocks of this many bytes (0: byte at a time)")
	sendCmd.Flags().String("text", "", "payload text")
	sendCmd.Flags().String("file", "", "payload file")
}
