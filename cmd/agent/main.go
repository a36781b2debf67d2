package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/dkeye/CallRelay/internal/adapters/rtc"
	"github.com/dkeye/CallRelay/internal/agent"
	"github.com/dkeye/CallRelay/internal/domain"
)

func main() {
	var (
		relayURL   = flag.String("relay", "http://localhost:8080", "relay base URL")
		role       = flag.String("role", "doctor", "principal role: doctor or patient")
		id         = flag.Int64("id", 0, "principal id (defaults to the id for --role in the pair)")
		doctorID   = flag.Int64("doctor", 0, "doctor id of the pair")
		patientID  = flag.Int64("patient", 0, "patient id of the pair")
		initiator  = flag.Bool("initiate", false, "create the session and send the offer")
		sessionID  = flag.String("session", "", "join this session instead of looking it up by pair")
		poll       = flag.Duration("poll", time.Second, "poll interval")
		maxBackoff = flag.Duration("max-backoff", 15*time.Second, "cap for error backoff")
		watch      = flag.Bool("watch", true, "use the push stream to wake polling")
		replace    = flag.Bool("replace-stale", false, "end a blocking session that is past CREATED")
		stun       = flag.StringSlice("stun", nil, "ICE server URLs")
		level      = flag.String("log-level", "info", "log level")
		pionLevel  = flag.String("pion-log-level", "warn", "log level for the WebRTC stack")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if lvl, err := zerolog.ParseLevel(*level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	pair, err := domain.NewParticipants(*doctorID, *patientID)
	if err != nil {
		log.Fatal().Err(err).Msg("--doctor and --patient are required")
	}
	r, err := domain.ParseRole(*role)
	if err != nil {
		log.Fatal().Err(err).Msg("bad --role")
	}
	pid := *id
	if pid == 0 {
		pid = pair.IDFor(r)
	}
	pr := domain.Principal{Role: r, ID: pid}

	client, err := agent.NewClient(*relayURL, pr)
	if err != nil {
		log.Fatal().Err(err).Msg("relay client")
	}

	pl, err := zerolog.ParseLevel(*pionLevel)
	if err != nil {
		pl = zerolog.WarnLevel
	}
	api := rtc.NewAPI(rtc.NewLoggerFactory(pl))
	peer, err := rtc.NewConnection(api, rtc.DefaultConfig(*stun...), pr.String())
	if err != nil {
		log.Fatal().Err(err).Msg("peer connection")
	}

	a := agent.New(agent.Config{
		Participants: pair,
		Initiator:    *initiator,
		SessionID:    domain.SessionID(*sessionID),
		PollInterval: *poll,
		MaxBackoff:   *maxBackoff,
		ReplaceStale: *replace,
		EndOnExit:    true,
		Watch:        *watch,
	}, client, peer)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().Str("relay", *relayURL).Str("principal", pr.String()).Bool("initiator", *initiator).Msg("agent starting")
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Str("sid", string(a.SessionID())).Msg("agent stopped")
		os.Exit(1)
	}
	log.Info().Str("sid", string(a.SessionID())).Msg("agent finished")
}
