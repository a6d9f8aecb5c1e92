package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"unicode"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/snappy-loop/feeled/internal/apiclient"
	"github.com/snappy-loop/feeled/internal/audio"
	"github.com/snappy-loop/feeled/internal/catalog"
	"github.com/snappy-loop/feeled/internal/models"
	"github.com/snappy-loop/feeled/internal/session"
)

var generateOpts struct {
	request   models.StoryRequest
	transport string
	apiURL    string
	grpcAddr  string
	token     string
	outDir    string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a story with narration and illustration",
	Example: `  storyctl generate --topic Gravity --std "5th STD" --language English --narrator Male --tone Curious
  storyctl generate --topic Photosynthesis --language Tamil --transport grpc --out ./stories`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	defaults := catalog.Default().Defaults
	f := generateCmd.Flags()
	f.StringVar(&generateOpts.request.Topic, "topic", "", "concept the story explains (required)")
	f.StringVar(&generateOpts.request.Std, "std", defaults.Std, "grade level, e.g. \"5th STD\"")
	f.StringVar(&generateOpts.request.Language, "language", defaults.Language, "story language")
	f.StringVar(&generateOpts.request.NarratorVoice, "narrator", defaults.NarratorVoice, "narrator voice: Male or Female")
	f.StringVar(&generateOpts.request.EmotionTone, "tone", defaults.EmotionTone, "emotion tone")
	f.StringVar(&generateOpts.transport, "transport", "http", "http or grpc")
	f.StringVar(&generateOpts.apiURL, "api", envOr(cfg.APIBaseURL, "http://localhost:8080"), "API base URL (http transport)")
	f.StringVar(&generateOpts.grpcAddr, "grpc", cfg.GRPCTarget, "gRPC target (grpc transport)")
	f.StringVar(&generateOpts.token, "token", cfg.APIToken, "bearer token")
	f.StringVar(&generateOpts.outDir, "out", ".", "directory for the story files")
	rootCmd.AddCommand(generateCmd)
}

func envOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func runGenerate(cmd *cobra.Command, args []string) error {
	backend, closeBackend, err := dialBackend()
	if err != nil {
		return err
	}
	defer closeBackend()

	orch := session.New(backend, session.WithTimeout(cfg.RemoteTimeout))
	unsubscribe := orch.Subscribe(printTransition(cmd.ErrOrStderr()))
	defer unsubscribe()

	if _, err := orch.Submit(generateOpts.request); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	st, err := orch.Wait(ctx)
	if err != nil {
		orch.TryAnother()
		return fmt.Errorf("interrupted: %w", err)
	}
	if st.Story == nil {
		return fmt.Errorf("%s", st.Banner)
	}

	paths, err := writeStoryFiles(generateOpts.outDir, st)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n\n", st.Story.Title)
	for _, p := range paths {
		fmt.Fprintf(out, "wrote %s\n", p)
	}
	if st.Banner != "" {
		fmt.Fprintf(out, "\n%s\n", st.Banner)
	}
	return nil
}

// dialBackend returns the remote generator for the chosen transport.
func dialBackend() (session.Generator, func(), error) {
	switch generateOpts.transport {
	case "http":
		c := apiclient.NewClient(generateOpts.apiURL,
			apiclient.WithToken(generateOpts.token),
			apiclient.WithTimeout(cfg.RemoteTimeout))
		return c, func() {}, nil
	case "grpc":
		c, err := apiclient.DialGRPC(generateOpts.grpcAddr, generateOpts.token, cfg.RemoteTimeout)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q (want http or grpc)", generateOpts.transport)
	}
}

// printTransition reports phase and asset changes as they happen.
func printTransition(w io.Writer) func(session.State) {
	var last session.State
	return func(st session.State) {
		switch {
		case st.Phase == session.PhaseStoryPending && last.Phase != session.PhaseStoryPending:
			fmt.Fprintln(w, "Writing story...")
		case st.Phase == session.PhaseStoryReady && last.Phase == session.PhaseStoryPending:
			fmt.Fprintf(w, "Story ready: %s. Recording narration and painting illustration...\n", st.Story.Title)
		}
		if st.Audio != last.Audio && st.Audio != session.AssetPending && st.Audio != session.AssetNone {
			fmt.Fprintf(w, "Narration %s\n", st.Audio)
		}
		if st.Image != last.Image && st.Image != session.AssetPending && st.Image != session.AssetNone {
			fmt.Fprintf(w, "Illustration %s\n", st.Image)
		}
		last = st
	}
}

// writeStoryFiles writes the share text, the narration WAV and the illustration.
func writeStoryFiles(dir string, st session.State) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	base := fileBase(st.Story.Title)
	var written []string

	textPath := filepath.Join(dir, base+".txt")
	if err := os.WriteFile(textPath, []byte(st.Story.ShareText()+"\n"), 0o644); err != nil {
		return written, fmt.Errorf("write story text: %w", err)
	}
	written = append(written, textPath)

	if st.Audio == session.AssetReady && st.AudioPlayable {
		raw, err := audio.DecodeBase64(st.AudioAsset.Base64Audio)
		if err == nil {
			var wav []byte
			if wav, err = audio.EncodePCMToWAV(raw, audio.PCMSampleRate); err == nil {
				wavPath := filepath.Join(dir, base+".wav")
				if err := os.WriteFile(wavPath, wav, 0o644); err != nil {
					return written, fmt.Errorf("write narration: %w", err)
				}
				written = append(written, wavPath)
			}
		}
		if err != nil {
			log.Warn().Err(err).Msg("Skipping narration file")
		}
	}

	if st.Image == session.AssetReady {
		data, err := base64.StdEncoding.DecodeString(st.ImageAsset.Base64Image)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping illustration file")
			return written, nil
		}
		imgPath := filepath.Join(dir, base+imageExtension(st.ImageAsset.MimeType))
		if err := os.WriteFile(imgPath, data, 0o644); err != nil {
			return written, fmt.Errorf("write illustration: %w", err)
		}
		written = append(written, imgPath)
	}
	return written, nil
}

// fileBase turns a model-written title into a single path element inside the
// output directory.
func fileBase(title string) string {
	base := strings.TrimSuffix(audio.DownloadFilename(title), ".wav")
	base = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, base)
	base = strings.TrimLeft(base, ".")
	if base == "" {
		return "story"
	}
	return base
}

func imageExtension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
