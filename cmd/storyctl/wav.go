package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/snappy-loop/feeled/internal/audio"
)

var wavCmd = &cobra.Command{
	Use:   "wav <base64-pcm-file> <out.wav>",
	Short: "Wrap base64 narration PCM (16-bit mono, 24 kHz) in a WAV file",
	Args:  cobra.ExactArgs(2),
	RunE:  runWAV,
}

func init() {
	rootCmd.AddCommand(wavCmd)
}

func runWAV(cmd *cobra.Command, args []string) error {
	in, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	raw, err := audio.DecodeBase64(string(in))
	if err != nil {
		return err
	}
	wav, err := audio.EncodePCMToWAV(raw, audio.PCMSampleRate)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], wav, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	info, err := audio.Info(wav)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d samples, %.2fs)\n", args[1], info.NumSamples, info.Duration)
	return nil
}
