package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/haivivi/subvocal/pkg/emglink"
	"github.com/haivivi/subvocal/pkg/mqtt"
)

var (
	simListen string
	simWS     string
	simMQTT   string
	simDead   []int
	simSeed   uint64
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Serve the device simulator",
	Long: `Run the EMG board simulator so the pipeline can be exercised without
hardware. It speaks the firmware line protocol on a TCP port and,
optionally, over a WebSocket bridge. Muscle activity follows the label set
by the last L<label> command.

With --mqtt an embedded MQTT broker is started as well and every message
published to it is logged, so 'live --mqtt' can be tried end to end.

Examples:
  subvocal sim --listen :7777
  subvocal --device tcp://localhost:7777 test

  subvocal sim --mqtt :1883 --dead 2
  subvocal --device tcp://localhost:7777 live --mqtt tcp://localhost:1883`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		log := slog.Default()
		sim := emglink.NewSimulator(emglink.SimulatorOptions{
			SampleRate:   int(cfg.Pipeline.SampleRate),
			Channels:     cfg.Pipeline.Channels,
			SilenceLabel: cfg.Pipeline.SilenceLabel,
			DeadChannels: simDead,
			Seed:         simSeed,
			Logger:       log,
		})

		if simMQTT != "" {
			broker := &mqtt.Server{
				OnPublish: func(clientID, topic string, payload []byte) {
					log.Info("subvocal: mqtt message", "client", clientID, "topic", topic, "payload", string(payload))
				},
			}
			if err := broker.ListenAndServe(simMQTT); err != nil {
				return fmt.Errorf("mqtt broker: %w", err)
			}
			defer broker.Close()
			log.Info("subvocal: mqtt broker listening", "addr", simMQTT)
		}

		errc := make(chan error, 2)
		if simWS != "" {
			srv := &http.Server{Addr: simWS, Handler: wsHandler(ctx, sim), ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				srv.Shutdown(sctx)
			}()
			go func() {
				log.Info("subvocal: simulator websocket listening", "addr", simWS)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
			}()
		}

		ln, err := net.Listen("tcp", simListen)
		if err != nil {
			return err
		}
		log.Info("subvocal: simulator listening", "addr", ln.Addr().String(), "channels", cfg.Pipeline.Channels, "rate", cfg.Pipeline.SampleRate)
		go func() { errc <- sim.ListenAndServe(ctx, ln) }()

		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		}
	},
}

func wsHandler(ctx context.Context, sim *emglink.Simulator) http.Handler {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := emglink.NewWebSocketConn(c)
		defer conn.Close()
		if err := sim.Serve(ctx, conn); err != nil {
			slog.Info("subvocal: websocket client gone", "remote", r.RemoteAddr, "error", err)
		}
	})
}

func init() {
	simCmd.Flags().StringVar(&simListen, "listen", ":7777", "TCP address for the line protocol")
	simCmd.Flags().StringVar(&simWS, "ws", "", "also serve a WebSocket bridge on this address")
	simCmd.Flags().StringVar(&simMQTT, "mqtt", "", "also run an MQTT broker on this address")
	simCmd.Flags().IntSliceVar(&simDead, "dead", nil, "channels (0-based) that output a flat line")
	simCmd.Flags().Uint64Var(&simSeed, "seed", 0, "noise seed")
	rootCmd.AddCommand(simCmd)
}
