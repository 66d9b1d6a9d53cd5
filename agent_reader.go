package main

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

// keys registered with the miio agent so it forwards their traffic to us
var agentKeys = []string{
	"auto.report",
	"auto.forward",
	"lanbox.event",
	"auto.ifttt",
	"auto.cross.ifttt",
	"matter.control",
	"matter.event",
	"mtbr.control",
}

func agentReader() {
	for {
		conn, err := net.Dial("unixpacket", config.Socket)
		if err != nil {
			time.Sleep(500 * time.Millisecond)
			continue
		}

		log.Info().Str("socket", config.Socket).Int("bind", config.Bind).
			Msg("Connected to miio agent")

		agentHandshake(conn)

		done := make(chan struct{})
		go agentWriter(conn, done)

		b := make([]byte, 4096)
		for {
			n, err := conn.Read(b)
			if err != nil {
				log.Warn().Err(err).Msg("Close agent connection")
				break
			}

			payload := make([]byte, n)
			copy(payload, b[:n])
			router.OnAgent(payload)
		}

		close(done)
		_ = conn.Close()
		time.Sleep(500 * time.Millisecond)
	}
}

// agentHandshake binds our address and registers the forwarded method keys.
// Repeated after every reconnect because the agent keeps no client state.
func agentHandshake(conn net.Conn) {
	if _, err := conn.Write([]byte(fmt.Sprintf(`{"address":%d,"method":"bind"}`, config.Bind))); err != nil {
		log.Warn().Err(err).Send()
		return
	}
	for _, key := range agentKeys {
		if _, err := conn.Write([]byte(fmt.Sprintf(`{"key":"%s","method":"register"}`, key))); err != nil {
			log.Warn().Err(err).Send()
			return
		}
	}
}

// agentWriter drains the outbound queue to the current connection. The queue
// itself survives reconnects, so commands sent while offline are not lost.
func agentWriter(conn net.Conn, done chan struct{}) {
	for {
		select {
		case payload := <-router.out:
			log.WithLevel(miioraw).RawJSON("data", payload).Msg("miio<-")
			if _, err := conn.Write(payload); err != nil {
				log.Warn().Err(err).Send()
				return
			}
		case <-done:
			return
		}
	}
}
