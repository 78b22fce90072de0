package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/haivivi/subvocal/cmd/subvocal/internal/config"
	"github.com/haivivi/subvocal/pkg/cli"
	"github.com/haivivi/subvocal/pkg/live"
	"github.com/haivivi/subvocal/pkg/model"
	"github.com/haivivi/subvocal/pkg/mqtt"
	"github.com/haivivi/subvocal/pkg/storage"
)

var (
	liveModel  string
	liveMQTT   string
	livePrefix string
	liveTUI    bool
)

const redrawEvery = 100 * time.Millisecond

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Recognize commands in real time",
	Long: `Stream from the device and recognize commands with the trained model.

Each window is classified and a command fires once it wins a majority of
the last few predictions. The same command fires again only after a
silence. With --mqtt every command is published as JSON to
<prefix>/command/<label>.

The model is read from the model directory, or fetched from a published
location (s3://bucket/prefix) into the local cache.

Examples:
  subvocal live
  subvocal live --tui
  subvocal live --model s3://models/headset-a --mqtt tcp://localhost:1883`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := loadModel(ctx, cfg, liveModel)
		if err != nil {
			return err
		}
		if err := a.CheckCompatible(cfg.Pipeline); err != nil {
			return err
		}
		slog.Info("subvocal: model loaded", "id", a.ID, "kind", a.Kind, "classes", a.Classes)

		sinks := live.MultiSink{live.LogSink{}}
		url := cfg.MQTT.URL
		if liveMQTT != "" {
			url = liveMQTT
		}
		if url != "" {
			dl := &mqtt.Dialer{
				ID: cfg.MQTT.ClientID,
				OnConnectError: func(err error) {
					slog.Warn("subvocal: mqtt connect failed", "error", err)
				},
			}
			conn, err := dl.Dial(ctx, url)
			if err != nil {
				return fmt.Errorf("mqtt %s: %w", url, err)
			}
			defer conn.Close()
			prefix := cfg.MQTT.Prefix
			if livePrefix != "" {
				prefix = livePrefix
			}
			sinks = append(sinks, &live.MQTTSink{Publisher: conn, Prefix: prefix, QoS: mqtt.QoS(cfg.MQTT.QoS)})
			slog.Info("subvocal: publishing commands", "broker", url, "topic", prefix+"/command/<label>")
		}

		link, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer link.Close()

		out := cmd.OutOrStdout()
		styles := cli.NewStyles(cli.DefaultTheme)
		opts := live.Options{Config: &cfg.Pipeline}
		if liveTUI {
			view := newTerminalView(out, styles)
			opts.OnStatus, opts.OnPrediction = view.Status, view.Prediction
			sinks = append(sinks, view)
			stop := redraw(ctx, view)
			defer stop()
		} else {
			p := &cli.LivePrinter{Out: out, Styles: styles, Silence: a.Config().SilenceLabel}
			opts.OnStatus, opts.OnPrediction = p.Status, p.Prediction
			sinks = append(sinks, p)
		}
		opts.Sink = sinks

		loop, err := live.NewLoop(a, opts)
		if err != nil {
			return err
		}
		if err := loop.Run(ctx, link); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nStopped after %d samples.\n", loop.Samples())
		return nil
	},
}

// loadModel reads the model from a directory or fetches it from a store.
// A failed fetch falls back to the last cached copy.
func loadModel(ctx context.Context, cfg *config.Config, from string) (*model.Artifact, error) {
	if from == "" {
		from = cfg.Paths.Model
	}
	if !storage.IsRemote(from) {
		return model.Load(from)
	}
	cacheDir := filepath.Join(cfg.Paths.Cache, cacheName(from))
	store, err := storage.Open(from, cfg.S3)
	if err != nil {
		return nil, err
	}
	a, err := model.Fetch(ctx, store, cacheDir)
	if err == nil {
		return a, nil
	}
	if errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	cached, cerr := model.Load(cacheDir)
	if cerr != nil {
		return nil, err
	}
	slog.Warn("subvocal: fetch failed, using cached model", "from", from, "error", err, "id", cached.ID)
	return cached, nil
}

// cacheName maps a store URI to a directory name.
func cacheName(uri string) string {
	return strings.NewReplacer("://", "_", "/", "_", ":", "_").Replace(strings.TrimRight(uri, "/"))
}

// newTerminalView sizes a LiveView to the terminal and routes log output
// into it.
func newTerminalView(out io.Writer, styles cli.Styles) *cli.LiveView {
	w, h := 80, 24
	if tw, th, err := term.GetSize(os.Stdout.Fd()); err == nil && tw > 0 && th > 0 {
		w, h = tw, th
	}
	logs := cli.NewLogWriter(h)
	slog.SetDefault(slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelInfo})))
	return cli.NewLiveView(out, styles, logs, w, h)
}

func redraw(ctx context.Context, v *cli.LiveView) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(redrawEvery)
		defer t.Stop()
		for {
			v.Draw()
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func init() {
	liveCmd.Flags().StringVar(&liveModel, "model", "", "model directory or store URI (default: paths.model)")
	liveCmd.Flags().StringVar(&liveMQTT, "mqtt", "", "publish commands to this broker (tcp://host:1883)")
	liveCmd.Flags().StringVar(&livePrefix, "prefix", "", "MQTT topic prefix (default from config)")
	liveCmd.Flags().BoolVar(&liveTUI, "tui", false, "full-screen view")
	rootCmd.AddCommand(liveCmd)
}
