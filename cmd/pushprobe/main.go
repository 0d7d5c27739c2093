// Command pushprobe opens a push session against a running server and logs
// every frame it receives. It can mint its own token when given the signing
// secret, which is handy against a local stack.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/auth"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/otcheredev/emergency-dispatch/pkg/logger"
	"github.com/otcheredev/emergency-dispatch/pkg/protocol"
	"github.com/otcheredev/emergency-dispatch/pkg/pushclient"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/ws", "push endpoint")
		token    = flag.String("token", "", "bearer token; minted from -secret when empty")
		secret   = flag.String("secret", os.Getenv("JWT_SECRET"), "signing secret used to mint a token")
		issuer   = flag.String("issuer", "emergency-dispatch", "token issuer")
		userID   = flag.String("user", "", "user id for a minted token")
		role     = flag.String("role", string(models.RoleAmbulance), "role for a minted token")
		lat      = flag.Float64("lat", 0, "send a location_update with this latitude")
		lng      = flag.Float64("lng", 0, "send a location_update with this longitude")
		interval = flag.Duration("every", 0, "repeat the location_update at this interval")
		level    = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logger.Init(*level, "console")

	if *token == "" {
		minted, err := mint(*secret, *issuer, *userID, models.Role(*role))
		if err != nil {
			log.Fatal().Err(err).Msg("Cannot mint token")
		}
		*token = minted
	}

	session, err := pushclient.New(pushclient.Config{
		URL:   *url,
		Token: *token,
		OnFrame: func(f protocol.Frame) {
			if f.Type == protocol.TypeUnparseable {
				log.Warn().Bytes("raw", f.Raw).Msg("Unparseable frame")
				return
			}
			log.Info().Str("type", f.Type).RawJSON("data", orEmpty(f.Data)).Msg("Frame")
		},
		OnStateChange: func(st pushclient.State) {
			log.Info().Stringer("state", st).Msg("Session state")
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid session config")
	}
	session.Connect()

	sendLocation := *lat != 0 || *lng != 0
	if sendLocation {
		send(session, *lat, *lng)
	}

	var tick <-chan time.Time
	if sendLocation && *interval > 0 {
		t := time.NewTicker(*interval)
		defer t.Stop()
		tick = t.C
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-tick:
			send(session, *lat, *lng)
		case <-quit:
			session.Close()
			return
		}
	}
}

func send(s *pushclient.Session, lat, lng float64) {
	frame := protocol.MustNew(protocol.TypeLocationUpdate, protocol.LocationUpdate{Lat: lat, Lng: lng})
	if err := s.Send(frame); err != nil {
		log.Error().Err(err).Msg("Send failed")
		return
	}
	log.Debug().Int("queued", s.QueueLen()).Msg("Location queued")
}

func mint(secret, issuer, rawUser string, role models.Role) (string, error) {
	id := uuid.New()
	if rawUser != "" {
		parsed, err := uuid.Parse(rawUser)
		if err != nil {
			return "", err
		}
		id = parsed
	}
	tokens, err := auth.NewTokenService(secret, issuer, 0)
	if err != nil {
		return "", err
	}
	log.Info().Str("user_id", id.String()).Str("role", string(role)).Msg("Minted probe token")
	return tokens.Issue(models.Actor{UserID: id, Role: role}, time.Hour)
}

func orEmpty(data []byte) []byte {
	if len(data) == 0 {
		return []byte("{}")
	}
	return data
}
